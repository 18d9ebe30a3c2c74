package store

import "embed"

// Migrations embeds the schema migration set applied at startup via
// database.RunMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory goose reads from inside Migrations.
const MigrationsDir = "migrations"
