// Package db embeds the PostgreSQL schema.
package db

import _ "embed"

// Schema contains the idempotent DDL for every table the service uses.
//
//go:embed migrations/001_schema.sql
var Schema string
