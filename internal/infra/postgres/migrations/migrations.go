package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema of questions, matches and rewards in version order.
var Migrations = migrate.NewMigrations()
