// Package migrations embeds the versioned schema files for each supported
// database engine.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// FS returns the migration files for driver, rooted so that the numbered
// .sql files sit at the top level.
func FS(driver string) (fs.FS, error) {
	switch driver {
	case "postgres", "mysql":
		return fs.Sub(files, driver)
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
}
