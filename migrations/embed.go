// Package migrations carries the postgres schema in the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
