// Package migrations embeds the goose SQL migrations so binaries can migrate
// the schema without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
