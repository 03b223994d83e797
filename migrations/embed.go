// Package migrations holds the tenant schema DDL applied by db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
