package sqlstore

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// pqForeignKeyViolation is the SQLSTATE Postgres reports when a write would
// break a foreign key.
const pqForeignKeyViolation = "23503"

// isForeignKeyViolation reports whether err is a foreign key failure from
// either engine. SQLite only exposes it through the message text.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	return strings.Contains(strings.ToUpper(err.Error()), "FOREIGN KEY")
}
