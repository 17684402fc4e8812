// Package migrations embeds the SQL schema files so the server, the migration
// script and the integration tests all apply the same schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
