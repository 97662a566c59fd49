// Package migrations embeds the goose migrations of the reminder schema.
package migrations

import "embed"

// FS holds the *.sql files at its root; pass "." as the goose directory.
//
//go:embed *.sql
var FS embed.FS

// Dir is the migrations directory inside FS.
const Dir = "."
