package appfs

import "embed"

// FS holds files needed at runtime, goose migrations included.
//go:embed migrations/*.sql
var FS embed.FS
