// Package migrations embeds the SQL schema for the Postgres account store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
