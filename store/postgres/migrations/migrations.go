// Package migrations embeds the goose SQL migrations for the refresh_tokens table.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
