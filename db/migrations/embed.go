// Package dbmigrations exposes embedded SQL migrations for studio binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into studio binaries.
//
//go:embed *.sql
var Files embed.FS
