// Package migrations embeds the SQL schema for the SQLite store.
package migrations

import "embed"

// FS holds every NNN_name.up.sql file, applied in version order.
//
//go:embed *.sql
var FS embed.FS
