package lifecycle

import "github.com/mesh-intelligence/hera/pkg/types"

// Entity is the generic entity lifecycle: active and archived move freely
// between each other and either may become deleted, which is terminal.
var Entity = MustWorkflow("entity", string(types.StatusActive),
	[]string{string(types.StatusActive), string(types.StatusArchived), string(types.StatusDeleted)},
	map[string][]string{
		string(types.StatusActive):   {string(types.StatusArchived), string(types.StatusDeleted)},
		string(types.StatusArchived): {string(types.StatusActive), string(types.StatusDeleted)},
	},
)

// ValidateStatus checks a generic lifecycle change. Staying in a
// non-terminal status is an idempotent no-op and is allowed.
func ValidateStatus(from, to types.Status) error {
	if from == to && from != types.StatusDeleted && from.Valid() {
		return nil
	}
	return Entity.Validate(string(from), string(to))
}
