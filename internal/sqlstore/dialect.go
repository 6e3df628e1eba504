package sqlstore

import (
	"strconv"
	"strings"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// dialect captures the few differences between SQLite and Postgres that the
// store cares about: placeholder syntax, column types and LIMIT handling.
type dialect struct {
	name     string
	numeric  string
	boolean  string
	dollarPH bool
}

var (
	sqliteDialect   = dialect{name: types.BackendSQLite, numeric: "REAL", boolean: "INTEGER"}
	postgresDialect = dialect{name: types.BackendPostgres, numeric: "DOUBLE PRECISION", boolean: "BOOLEAN", dollarPH: true}
)

func dialectFor(backend string) (dialect, error) {
	switch backend {
	case types.BackendSQLite:
		return sqliteDialect, nil
	case types.BackendPostgres:
		return postgresDialect, nil
	}
	return dialect{}, types.ErrBackendUnknown
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres. Queries in
// this package never contain a literal question mark.
func (d dialect) rebind(q string) string {
	if !d.dollarPH {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// limitOffset renders a LIMIT/OFFSET clause. Zero means no bound.
func (d dialect) limitOffset(limit, offset int) (string, []any) {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT ? OFFSET ?", []any{limit, offset}
	case limit > 0:
		return " LIMIT ?", []any{limit}
	case offset > 0 && d.name == types.BackendSQLite:
		return " LIMIT -1 OFFSET ?", []any{offset}
	case offset > 0:
		return " OFFSET ?", []any{offset}
	}
	return "", nil
}

// placeholders returns n comma-separated placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
