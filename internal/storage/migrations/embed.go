// Package migrations ships the layered-store schema: bronze and silver
// tables for Postgres, the gold price-event table for ClickHouse. Files
// are embedded in the binary and applied in lexical order, so numeric
// prefixes define the sequence. Every file must be idempotent
// (CREATE ... IF NOT EXISTS); there is no down path.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var schemaFS embed.FS

// schemaFile is one embedded migration, already read into memory.
type schemaFile struct {
	name string
	sql  string
}

// loadSchemaFiles returns the non-empty .sql files under dir in lexical
// order.
func loadSchemaFiles(dir string) ([]schemaFile, error) {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []schemaFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(schemaFS, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		files = append(files, schemaFile{name: entry.Name(), sql: string(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}
