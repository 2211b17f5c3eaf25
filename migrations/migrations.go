// Package migrations embeds the Postgres schema applied at startup.
package migrations

import "embed"

// FS holds the numbered migration files.
//
//go:embed *.sql
var FS embed.FS
