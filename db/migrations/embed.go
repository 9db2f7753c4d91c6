package migrations

import "embed"

// UpFiles embeds all upward migrations (writer registry schema) for the migrator.
//
//go:embed *.up.sql
var UpFiles embed.FS
