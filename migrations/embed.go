// Package migrations holds the SQL schema of the remote store, embedded so
// the daemon and tests can migrate without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
