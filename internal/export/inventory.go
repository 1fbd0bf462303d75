// Package export writes extraction results as spreadsheet inventories.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/cad-analyzer-mcp/internal/extract"
	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

// Sheet names of the inventory workbook.
const (
	SheetDevices     = "Devices"
	SheetAnnotations = "Annotations"
	SheetWiring      = "Wiring"
)

// InventoryXLSX returns a workbook with one sheet per result list, rows in
// scan order.
func InventoryXLSX(res *extract.Result) ([]byte, error) {
	if res == nil {
		res = &extract.Result{}
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}

	sheets := []sheet{
		{SheetDevices, []string{"#", "Name", "Entity", "Layer", "X", "Y", "Z", "Rotation", "Attributes"},
			[]float64{6, 28, 10, 16, 12, 12, 8, 10, 40}, deviceRows(res.SecurityDevices)},
		{SheetAnnotations, []string{"#", "Text", "Type", "Layer", "Position"},
			[]float64{6, 48, 10, 16, 28}, annotationRows(res.TextAnnotations)},
		{SheetWiring, []string{"#", "Kind", "Layer", "Label", "Points", "Coordinates"},
			[]float64{6, 12, 16, 40, 8, 60}, wiringRows(res.Wiring)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, fmt.Errorf("xlsx sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("xlsx sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

type sheet struct {
	name    string
	headers []string
	widths  []float64
	rows    [][]any
}

// writeSheet fills an existing sheet: a styled header row, then rows, then
// column widths.
func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	for col, h := range s.headers {
		if err := setCell(f, s.name, col+1, 1, h); err != nil {
			return err
		}
	}
	if len(s.headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(s.headers), 1)
		if err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", s.name, err)
		}
		if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("xlsx sheet %s: header style: %w", s.name, err)
		}
	}

	for r, row := range s.rows {
		for col, v := range row {
			if err := setCell(f, s.name, col+1, r+2, v); err != nil {
				return err
			}
		}
	}
	for col, w := range s.widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", s.name, err)
		}
		if err := f.SetColWidth(s.name, name, name, w); err != nil {
			return fmt.Errorf("xlsx sheet %s: column %s width: %w", s.name, name, err)
		}
	}
	return nil
}

func setCell(f *excelize.File, sheetName string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("xlsx sheet %s: %w", sheetName, err)
	}
	if err := f.SetCellValue(sheetName, cell, v); err != nil {
		return fmt.Errorf("xlsx sheet %s: cell %s: %w", sheetName, cell, err)
	}
	return nil
}

func deviceRows(devices []extract.SecurityDevice) [][]any {
	rows := make([][]any, 0, len(devices))
	for i, d := range devices {
		rows = append(rows, []any{
			i + 1, d.Name, d.EntityType, d.Layer,
			d.Position.X, d.Position.Y, d.Position.Z, d.Rotation,
			formatAttributes(d.Attributes),
		})
	}
	return rows
}

func annotationRows(annotations []extract.TextAnnotation) [][]any {
	rows := make([][]any, 0, len(annotations))
	for i, a := range annotations {
		pos := ""
		if a.Position != nil {
			pos = formatPoint(*a.Position)
		}
		rows = append(rows, []any{i + 1, a.Text, a.Type, a.Layer, pos})
	}
	return rows
}

func wiringRows(wiring []extract.WiringSegment) [][]any {
	rows := make([][]any, 0, len(wiring))
	for i, w := range wiring {
		if w.IsLabeled() {
			pos := ""
			if w.Position != nil {
				pos = formatPoint(*w.Position)
			}
			rows = append(rows, []any{i + 1, "label", w.Layer, w.Text, 0, pos})
			continue
		}
		pts := make([]string, len(w.Points))
		for j, p := range w.Points {
			pts[j] = formatPoint(p)
		}
		rows = append(rows, []any{i + 1, w.Type, w.Layer, "", len(w.Points), strings.Join(pts, " -> ")})
	}
	return rows
}

func formatPoint(p geom.Point3) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return "(" + f(p.X) + ", " + f(p.Y) + ", " + f(p.Z) + ")"
}

// formatAttributes renders tag=value pairs sorted by tag.
func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	tags := make([]string, 0, len(attrs))
	for t := range attrs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t + "=" + attrs[t]
	}
	return strings.Join(parts, "; ")
}
