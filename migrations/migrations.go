// Package migrations embeds the postgres schema migrations.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS
