// Package migrations holds the schema migrations compiled into the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
