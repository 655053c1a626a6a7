// Package sql embeds the goose migrations so the server binary can migrate its own database.
package sql

import "embed"

// Migrations holds the goose migration files under schema/.
//
//go:embed schema/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of the migrations inside Migrations.
const MigrationsDir = "schema"
