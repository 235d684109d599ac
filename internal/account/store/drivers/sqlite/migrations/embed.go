package migrations

import "embed"

// Migrations contains the embedded SQL migrations for the account store.
//
//go:embed *.sql
var Migrations embed.FS
