package trace

import (
	"fmt"
	"strings"
)

// dialect covers the differences between the SQLite and PostgreSQL backends.
type dialect struct {
	name    string
	driver  string
	pragmas []string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite",
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
		},
	}
	postgresDialect = dialect{name: "postgres", driver: "pgx"}
)

// dialectFor picks the backend from the DSN: postgres:// URLs use pgx,
// anything else is a SQLite path or file: URI.
func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect
	}
	return sqliteDialect
}

// Rebind converts ? placeholders to $N for PostgreSQL.
func (d dialect) Rebind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var b strings.Builder
	idx := 1
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&b, "$%d", idx)
			idx++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
