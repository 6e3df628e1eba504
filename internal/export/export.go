// Package export writes entities to XLSX workbooks, one sheet per entity
// kind. Columns are the entity header, then dynamic fields in preset
// order, then one column per relationship type holding comma-joined
// target ids.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// headerColumns precede the field columns on every sheet.
var headerColumns = []string{"ID", "Name", "Code", "Status", "Smart Code", "Created", "Updated"}

// maxSheetName is the XLSX limit on sheet name length.
const maxSheetName = 31

// Columns returns the column titles for s.
func Columns(s *preset.EntitySchema) []string {
	cols := append([]string(nil), headerColumns...)
	for _, f := range s.Fields {
		cols = append(cols, columnTitle(f))
	}
	for _, r := range s.Relationships {
		cols = append(cols, r.Type)
	}
	return cols
}

func columnTitle(f preset.DynamicFieldDefinition) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Row returns the cell values of e in Columns order.
func Row(s *preset.EntitySchema, e *types.Entity) []any {
	row := []any{e.ID, e.EntityName, e.EntityCode, string(e.Status), e.SmartCode, e.CreatedAt, e.UpdatedAt}
	for _, f := range s.Fields {
		row = append(row, cellValue(e.Field(f.Name)))
	}
	for _, r := range s.Relationships {
		row = append(row, strings.Join(e.TargetIDs(r.Type), ","))
	}
	return row
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

// Sheet is one entity kind and its rows.
type Sheet struct {
	Schema   *preset.EntitySchema
	Entities []*types.Entity
}

// Workbook builds a workbook with one sheet per entry. The caller closes
// the returned file.
func Workbook(sheets []Sheet) (*excelize.File, error) {
	f := excelize.NewFile()
	if len(sheets) == 0 {
		return f, nil
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	dates, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create date style: %w", err)
	}

	for i, sh := range sheets {
		name := sheetName(sh.Schema.EntityType)
		idx, err := f.NewSheet(name)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, name, sh, header, dates); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}
	return f, nil
}

func writeSheet(f *excelize.File, name string, sh Sheet, headerStyle, dateStyle int) error {
	cols := Columns(sh.Schema)
	if err := f.SetSheetRow(name, "A1", &cols); err != nil {
		return fmt.Errorf("sheet %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("sheet %s header style: %w", name, err)
	}
	for i, e := range sh.Entities {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(sh.Schema, e)
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+2, err)
		}
		for c, v := range row {
			if _, ok := v.(time.Time); !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			if err := f.SetCellStyle(name, cell, cell, dateStyle); err != nil {
				return err
			}
		}
	}
	return nil
}

func sheetName(entityType string) string {
	if len(entityType) > maxSheetName {
		return entityType[:maxSheetName]
	}
	return entityType
}

// Stats counts exported rows per entity type.
type Stats map[string]int

// Export loads every non-deleted entity of the given kinds through o and
// writes the workbook to w. An empty kinds list exports every registered
// kind.
func Export(ctx context.Context, o *orchestrator.Orchestrator, kinds []string, w io.Writer) (Stats, error) {
	reg := o.Registry()
	if len(kinds) == 0 {
		kinds = reg.EntityTypes()
	}
	stats := Stats{}
	sheets := make([]Sheet, 0, len(kinds))
	for _, k := range kinds {
		s, err := reg.Resolve(k)
		if err != nil {
			return nil, err
		}
		list, err := o.Query(ctx, types.EntityQuery{
			EntityType: k,
			Status:     []types.Status{types.StatusActive, types.StatusArchived},
		})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", k, err)
		}
		sheets = append(sheets, Sheet{Schema: s, Entities: list})
		stats[k] = len(list)
	}

	f, err := Workbook(sheets)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return stats, nil
}
