// Package migrations embeds the SQL schema so the service and the migrate
// tool run the same files without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
