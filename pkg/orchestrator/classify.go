package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// referentialMarkers are message fragments backends use for foreign key
// failures when the error carries no kind.
var referentialMarkers = []string{
	"foreign key",
	"still referenced",
	"is referenced",
	"23503",
}

// classify maps a backend error onto the error kinds. Errors that already
// carry a kind pass through unchanged. Untyped foreign key failures become
// ErrReferenced. Anything else is returned as is and counts as a transport
// error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range types.Kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	if isReferentialConflict(err) {
		return fmt.Errorf("%w: %w", types.ErrReferenced, err)
	}
	return err
}

// isReferentialConflict reports whether err is the backend refusing a
// removal because other rows still point at the entity.
func isReferentialConflict(err error) bool {
	if errors.Is(err, types.ErrConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	msg := strings.ToLower(err.Error())
	for _, m := range referentialMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
