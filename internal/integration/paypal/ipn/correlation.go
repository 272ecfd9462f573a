package ipn

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/elliotchance/phpserialize"
	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	jsoniter "github.com/json-iterator/go"
)

// Scope is the kind of record a correlation token points at
type Scope string

const (
	ScopeOrder        Scope = "order"
	ScopeSubscription Scope = "subscription"
)

// Token is the (id, key) pair embedded in the checkout payload
type Token struct {
	ID  int64
	Key string
}

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	numericPattern = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?\s*$`)

	// serialized arrays only; anything naming a class or object is never decoded
	serializedArrayPattern  = regexp.MustCompile(`^a:2:{`)
	serializedObjectPattern = regexp.MustCompile(`[CO]:\+?[0-9]+:"`)
)

type tokenParser struct {
	name  string
	parse func(ctx context.Context, n *Notification, scope Scope) (Token, bool, error)
}

// Resolver derives the correlation token of a notification
type Resolver struct {
	subscriptions subscription.Repository
	orders        order.Repository
	invoicePrefix string
	logger        *logger.Logger
	parsers       []tokenParser
}

func NewResolver(
	subscriptions subscription.Repository,
	orders order.Repository,
	cfg *config.Configuration,
	logger *logger.Logger,
) *Resolver {
	r := &Resolver{
		subscriptions: subscriptions,
		orders:        orders,
		invoicePrefix: cfg.PayPal.InvoicePrefix,
		logger:        logger,
	}

	// oldest format first; the invoice fallback always applies
	r.parsers = []tokenParser{
		{name: "numeric", parse: r.parseNumeric},
		{name: "json", parse: r.parseJSON},
		{name: "serialized", parse: r.parseSerialized},
		{name: "invoice", parse: r.parseInvoice},
	}
	return r
}

// Resolve returns the token for the given scope. A token with ID 0 means the
// payload carried no usable id.
func (r *Resolver) Resolve(ctx context.Context, n *Notification, scope Scope) (Token, error) {
	if profileID := n.ProfileID(); profileID != "" {
		token, found, err := r.byProfile(ctx, profileID, scope)
		if err != nil {
			return Token{}, err
		}
		if found {
			return token, nil
		}
	}

	for _, p := range r.parsers {
		token, ok, err := p.parse(ctx, n, scope)
		if err != nil {
			return Token{}, err
		}
		if ok {
			r.logger.Debugw("resolved correlation token",
				"format", p.name,
				"scope", scope,
				"id", token.ID,
			)
			return token, nil
		}
	}
	return Token{}, nil
}

func (r *Resolver) byProfile(ctx context.Context, profileID string, scope Scope) (Token, bool, error) {
	switch scope {
	case ScopeOrder:
		o, err := r.orders.GetByProfileID(ctx, profileID)
		if err != nil {
			if ierr.IsNotFound(err) {
				return Token{}, false, nil
			}
			return Token{}, false, err
		}
		return Token{ID: o.ID, Key: o.OrderKey}, true, nil
	default:
		sub, err := r.subscriptions.GetByProfileID(ctx, profileID)
		if err != nil {
			if ierr.IsNotFound(err) {
				return Token{}, false, nil
			}
			return Token{}, false, err
		}
		return Token{ID: sub.ID, Key: sub.OrderKey}, true, nil
	}
}

func (r *Resolver) parseNumeric(_ context.Context, n *Notification, scope Scope) (Token, bool, error) {
	if scope != ScopeOrder || !isNumeric(n.Custom) {
		return Token{}, false, nil
	}
	return Token{ID: coerceID(n.Custom), Key: n.Invoice}, true, nil
}

func (r *Resolver) parseJSON(ctx context.Context, n *Notification, scope Scope) (Token, bool, error) {
	custom := strings.TrimSpace(n.Custom)
	if !strings.HasPrefix(custom, "{") {
		return Token{}, false, nil
	}

	var fields map[string]interface{}
	decoder := json.NewDecoder(strings.NewReader(custom))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil || len(fields) == 0 {
		return Token{}, false, nil
	}

	if scope == ScopeOrder {
		return Token{ID: coerceID(fields["order_id"]), Key: coerceKey(fields["order_key"])}, true, nil
	}

	if id, ok := fields["subscription_id"]; ok && id != nil {
		return Token{ID: coerceID(id), Key: coerceKey(fields["subscription_key"])}, true, nil
	}

	token, err := r.latestSubscriptionOf(ctx, coerceID(fields["order_id"]))
	return token, true, err
}

func (r *Resolver) parseSerialized(ctx context.Context, n *Notification, scope Scope) (Token, bool, error) {
	if !serializedArrayPattern.MatchString(n.Custom) || serializedObjectPattern.MatchString(n.Custom) {
		return Token{}, false, nil
	}

	elements, err := phpserialize.UnmarshalAssociativeArray([]byte(n.Custom))
	if err != nil || len(elements) == 0 {
		return Token{}, false, nil
	}

	id := coerceID(elements[int64(0)])
	if scope == ScopeOrder {
		return Token{ID: id, Key: coerceKey(elements[int64(1)])}, true, nil
	}

	token, err := r.latestSubscriptionOf(ctx, id)
	return token, true, err
}

func (r *Resolver) parseInvoice(_ context.Context, n *Notification, _ Scope) (Token, bool, error) {
	invoice := n.Invoice
	if r.invoicePrefix != "" {
		invoice = strings.ReplaceAll(invoice, r.invoicePrefix, "")
	}
	return Token{ID: coerceID(invoice), Key: n.Custom}, true, nil
}

// latestSubscriptionOf returns the token of the most recently created
// subscription of a parent order, or an empty token when there is none
func (r *Resolver) latestSubscriptionOf(ctx context.Context, orderID int64) (Token, error) {
	if orderID == 0 {
		return Token{}, nil
	}

	subs, err := r.subscriptions.ListByParentOrder(ctx, orderID)
	if err != nil {
		return Token{}, err
	}
	if len(subs) == 0 {
		return Token{}, nil
	}
	return Token{ID: subs[0].ID, Key: subs[0].OrderKey}, nil
}

func isNumeric(s string) bool {
	return numericPattern.MatchString(s)
}

// coerceID converts a decoded payload value to an id. Strings keep their
// leading integer digits only; anything unusable becomes 0.
func coerceID(v interface{}) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case fmt.Stringer:
		// json.Number when decoding with UseNumber
		return coerceID(val.String())
	case string:
		if isNumeric(val) {
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return int64(f)
			}
		}
		return leadingInt(val)
	default:
		return 0
	}
}

func leadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	id, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func coerceKey(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return ""
	default:
		return ""
	}
}
