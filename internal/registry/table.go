package registry

import "time"

// Number is a nullable numeric cell.
type Number struct {
	Value float64
	Valid bool
}

// Num builds a present numeric cell.
func Num(v float64) Number { return Number{Value: v, Valid: true} }

// OrZero substitutes zero for a missing value.
func (n Number) OrZero() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

// Text is a nullable categorical cell.
type Text struct {
	Value string
	Valid bool
}

// Str builds a present categorical cell.
func Str(v string) Text { return Text{Value: v, Valid: true} }

// Row is one registered trade event. Rows are shared between derived tables
// and must be treated as read-only once normalized.
type Row struct {
	Date        time.Time
	SellerID    string
	ProductName string
	Numbers     map[Field]Number
	Categories  map[Field]Text
	// Extra holds uninterpreted columns keyed by header, kept for export.
	Extra map[string]string
}

// Number returns the numeric cell for f; non-numeric fields are always missing.
func (r Row) Number(f Field) Number {
	return r.Numbers[f]
}

// Text returns the value of a string-like field. Seller and product are
// always present (possibly empty); categoricals may be null.
func (r Row) Text(f Field) Text {
	switch f {
	case FieldSellerID:
		return Str(r.SellerID)
	case FieldProductName:
		return Str(r.ProductName)
	}
	return r.Categories[f]
}

// Table is an immutable set of rows sharing one schema.
type Table struct {
	columns []string
	present map[Field]bool
	rows    []Row
}

// NewTable builds a table over columns (spreadsheet headers, schema order).
func NewTable(columns []string, rows []Row) Table {
	cols := append([]string(nil), columns...)
	return Table{columns: cols, present: presentFields(cols), rows: append([]Row(nil), rows...)}
}

// Len is the row count.
func (t Table) Len() int { return len(t.rows) }

// Rows returns a copy of the row slice.
func (t Table) Rows() []Row { return append([]Row(nil), t.rows...) }

// Columns returns the schema in source order.
func (t Table) Columns() []string { return append([]string(nil), t.columns...) }

// Has reports whether the field's column exists in the schema.
func (t Table) Has(f Field) bool { return t.present[f] }

// Where derives a table holding the rows matching keep.
func (t Table) Where(keep func(Row) bool) Table {
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return t.withRows(out)
}

// Empty derives a table with the same schema and no rows.
func (t Table) Empty() Table { return t.withRows(nil) }

func (t Table) withRows(rows []Row) Table {
	return Table{columns: t.columns, present: t.present, rows: rows}
}

// RawTable is an untyped grid as read from a spreadsheet or CSV file.
type RawTable struct {
	Header  []string
	Records [][]string
	// DecimalComma marks numbers written as 1.234,50.
	DecimalComma bool
	// SerialDates allows bare day numbers in the date column. Only workbooks
	// store dates that way; in text files a bare number is not a date.
	SerialDates bool
}
