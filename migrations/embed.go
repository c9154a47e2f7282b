// Package migrations embeds the SQL schema so the CLI and the integration
// tests apply exactly the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
