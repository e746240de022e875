// Package migrations embeds the SQL schema into the binary so the
// controller can migrate its database without files on disk.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
