package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tradeboard/tradeboard/internal/registry"
)

// bomWriter prefixes the output with a UTF-8 byte order mark so spreadsheet
// applications detect the encoding. Close flushes it.
func bomWriter(w io.Writer) io.WriteCloser {
	return transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
}

// WriteTableCSV writes one line per row with the table's columns in schema order.
func WriteTableCSV(w io.Writer, t registry.Table) error {
	out := bomWriter(w)
	writer := csv.NewWriter(out)
	columns := t.Columns()
	if err := writer.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, r := range t.Rows() {
		for i, c := range columns {
			record[i] = Cell(r, c)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return out.Close()
}

// WriteMonthlyCSV writes the monthly series.
func WriteMonthlyCSV(w io.Writer, series []registry.MonthBucket) error {
	out := bomWriter(w)
	writer := csv.NewWriter(out)
	if err := writer.Write([]string{"Ay", registry.ColumnAmount, registry.ColumnQuantity, "Kayit"}); err != nil {
		return err
	}
	for _, b := range series {
		if err := writer.Write([]string{
			b.Month.Format("2006-01"),
			formatFloat(b.AmountSum),
			formatFloat(b.QuantitySum),
			strconv.Itoa(b.RowCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return out.Close()
}

// WriteGroupCSV writes a top-N ranking under the given group header.
func WriteGroupCSV(w io.Writer, label string, groups []registry.GroupSum) error {
	out := bomWriter(w)
	writer := csv.NewWriter(out)
	if err := writer.Write([]string{label, registry.ColumnAmount}); err != nil {
		return err
	}
	for _, g := range groups {
		if err := writer.Write([]string{g.Value, formatFloat(g.Sum)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return out.Close()
}

// Cell renders the value of column for r; missing values are empty.
func Cell(r registry.Row, column string) string {
	spec, ok := registry.SpecForColumn(column)
	if !ok {
		return r.Extra[column]
	}
	switch spec.Kind {
	case registry.KindDate:
		return formatDate(r.Date)
	case registry.KindNumber:
		n := r.Number(spec.Name)
		if !n.Valid {
			return ""
		}
		return formatFloat(n.Value)
	default:
		v := r.Text(spec.Name)
		if !v.Valid {
			return ""
		}
		return v.Value
	}
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
