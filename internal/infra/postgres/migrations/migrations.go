package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change, applied in file-name order.
var Migrations = migrate.NewMigrations()
