package migrations

import "embed"

// Migrations contains the embedded SQL migrations for the profile store.
//
//go:embed *.sql
var Migrations embed.FS
