package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tradeboard/tradeboard/internal/registry"
)

// SheetName is the worksheet written by WriteTableXLSX.
const SheetName = "Tescil"

// WriteTableXLSX writes the table as a single-sheet workbook. Numeric cells
// stay numeric; everything else is written as text.
func WriteTableXLSX(w io.Writer, t registry.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	columns := t.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for n, r := range t.Rows() {
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			values[i] = xlsxValue(r, c)
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func xlsxValue(r registry.Row, column string) interface{} {
	if spec, ok := registry.SpecForColumn(column); ok && spec.Kind == registry.KindNumber {
		if n := r.Number(spec.Name); n.Valid {
			return n.Value
		}
		return ""
	}
	return Cell(r, column)
}
