// Package migrations embeds the SQL migration files so the migrate binary
// can run them from a single self-contained image.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
