// Package db embeds the PostgreSQL schema used by the postgres storage
// backend.
package db

import _ "embed"

// Schema creates the key-value and catalog tables. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
