// Package dbmigrations embeds Hadron's SQL migration set so the binary can
// apply its schema without a separate file distribution step.
package dbmigrations

import "embed"

//go:embed *.sql
var Files embed.FS
