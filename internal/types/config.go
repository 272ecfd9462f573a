package types

type RunMode string

const (
	// ModeLocal is the mode for running the API server with local defaults (.env, memory pubsub)
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running just the API server
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubType selects the transport used for domain events
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
	KafkaPubSub  PubSubType = "kafka"
)
