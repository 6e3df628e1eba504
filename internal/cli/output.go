package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDone writes a success line, or v as JSON in --json mode.
func printDone(w io.Writer, v any, format string, args ...any) error {
	if flags.jsonMode {
		return printJSON(w, v)
	}
	okColor.Fprintf(w, format+"\n", args...)
	return nil
}

func printEntity(w io.Writer, e *types.Entity) error {
	if flags.jsonMode {
		return printJSON(w, e)
	}
	fmt.Fprintf(w, "%s  %s\n", e.ID, e.EntityName)
	fmt.Fprintf(w, "  type:       %s\n", e.EntityType)
	if e.EntityCode != "" {
		fmt.Fprintf(w, "  code:       %s\n", e.EntityCode)
	}
	fmt.Fprintf(w, "  smart code: %s\n", e.SmartCode)
	fmt.Fprintf(w, "  status:     %s\n", statusText(e.Status))
	for _, name := range e.FieldNames() {
		fmt.Fprintf(w, "  %s: %s\n", name, formatValue(e.Field(name)))
	}
	for _, relType := range sortedKeys(e.Relationships) {
		for _, r := range e.Relationships[relType] {
			target := r.ToEntityID
			if r.ToEntity != nil {
				target += " (" + r.ToEntity.EntityName + ")"
			}
			fmt.Fprintf(w, "  %s -> %s\n", relType, target)
		}
	}
	return nil
}

func printEntities(w io.Writer, list []*types.Entity) error {
	if flags.jsonMode {
		return printJSON(w, list)
	}
	if len(list) == 0 {
		dimColor.Fprintln(w, "no entities")
		return nil
	}
	for _, e := range list {
		fmt.Fprintf(w, "%-36s  %-9s  %s\n", e.ID, e.Status, e.EntityName)
	}
	return nil
}

func printTransaction(w io.Writer, t *types.Transaction) error {
	if flags.jsonMode {
		return printJSON(w, t)
	}
	fmt.Fprintf(w, "%s  %s %s\n", t.ID, t.TransactionType, t.TransactionCode)
	fmt.Fprintf(w, "  status: %s\n", t.Status)
	fmt.Fprintf(w, "  date:   %s\n", t.TransactionDate.Format(time.RFC3339))
	fmt.Fprintf(w, "  total:  %s\n", t.TotalAmount.StringFixed(2))
	if t.ReversalOf != "" {
		fmt.Fprintf(w, "  corrects: %s\n", t.ReversalOf)
	}
	for _, l := range t.Lines {
		fmt.Fprintf(w, "  %3d  %-10s %s x %s = %s\n", l.LineNumber, l.LineType,
			l.Quantity.String(), l.UnitAmount.StringFixed(2), l.LineAmount.StringFixed(2))
	}
	return nil
}

func printTransactions(w io.Writer, list []*types.Transaction) error {
	if flags.jsonMode {
		return printJSON(w, list)
	}
	if len(list) == 0 {
		dimColor.Fprintln(w, "no transactions")
		return nil
	}
	for _, t := range list {
		fmt.Fprintf(w, "%-36s  %-10s  %-9s  %12s\n", t.ID, t.TransactionType, t.Status, t.TotalAmount.StringFixed(2))
	}
	return nil
}

// printOutcome reports a delete. A hard delete that fell back to archiving
// is a success with a warning.
func printOutcome(w io.Writer, id string, out orchestrator.DeleteOutcome) error {
	if !out.Success() {
		return out.Err
	}
	if flags.jsonMode {
		return printJSON(w, struct {
			Outcome string        `json:"outcome"`
			Message string        `json:"message,omitempty"`
			Entity  *types.Entity `json:"entity,omitempty"`
		}{out.Kind.String(), out.Message, out.Entity})
	}
	switch out.Kind {
	case orchestrator.ArchivedFallback:
		warnColor.Fprintf(w, "%s is still referenced; archived instead of deleted\n", id)
		if out.Message != "" {
			dimColor.Fprintln(w, out.Message)
		}
	case orchestrator.Archived:
		okColor.Fprintf(w, "Archived %s\n", id)
	default:
		okColor.Fprintf(w, "Deleted %s\n", id)
	}
	return nil
}

func statusText(s types.Status) string {
	switch s {
	case types.StatusArchived:
		return warnColor.Sprint(s)
	case types.StatusDeleted:
		return dimColor.Sprint(s)
	}
	return string(s)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case time.Time:
		return x.Format(time.RFC3339)
	case json.RawMessage:
		return string(x)
	case float64:
		return fmt.Sprintf("%g", x)
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
