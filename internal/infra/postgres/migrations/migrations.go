// Package migrations holds the Postgres schema as bun migrations.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
