// Package migrations embeds the goose migrations for the SQL document store
package migrations

import "embed"

// FS holds every migration file
//
//go:embed *.sql
var FS embed.FS
