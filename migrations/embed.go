// Package migrations embeds the schema files applied by cmd/migrator.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
