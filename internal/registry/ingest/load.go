package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tradeboard/tradeboard/internal/registry"
)

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("ingest: unsupported file format")

// LoadTable reads the first worksheet of an xlsx workbook or a delimited
// text file into an untyped grid. The first row is the header.
func LoadTable(ctx context.Context, src Source) (registry.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return registry.RawTable{}, err
	}
	var read func(context.Context, io.Reader) (registry.RawTable, error)
	switch src.Format() {
	case "xlsx", "xlsm":
		read = readWorkbook
	case "csv", "txt":
		read = readDelimited
	default:
		return registry.RawTable{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, src.Name)
	}

	rc, err := src.open()
	if err != nil {
		return registry.RawTable{}, err
	}
	defer rc.Close()

	raw, err := read(ctx, rc)
	if err != nil {
		return registry.RawTable{}, fmt.Errorf("ingest: read %s: %w", src, err)
	}
	return raw, nil
}

// grid splits the first row off as the header.
func grid(rows [][]string) registry.RawTable {
	if len(rows) == 0 {
		return registry.RawTable{}
	}
	return registry.RawTable{Header: rows[0], Records: rows[1:]}
}

func readWorkbook(ctx context.Context, r io.Reader) (registry.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return registry.RawTable{}, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return registry.RawTable{}, nil
	}
	if err := ctx.Err(); err != nil {
		return registry.RawTable{}, err
	}
	// Raw values keep dates as serial numbers and numbers unformatted.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return registry.RawTable{}, err
	}
	raw := grid(rows)
	raw.SerialDates = true
	return raw, nil
}

func readDelimited(ctx context.Context, r io.Reader) (registry.RawTable, error) {
	decoded := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	head, _ := decoded.Peek(4096)

	reader := csv.NewReader(decoded)
	reader.Comma = sniffDelimiter(head)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return registry.RawTable{}, err
		}
		rows = append(rows, rec)
		if len(rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return registry.RawTable{}, err
			}
		}
	}
	raw := grid(rows)
	// A semicolon list separator means the sheet was saved under a comma
	// decimal locale, so numbers read as 1.234,50.
	raw.DecimalComma = reader.Comma == ';'
	return raw, nil
}

// sniffDelimiter picks ';' for spreadsheets saved with a comma decimal
// locale, ',' otherwise.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	if bytes.Count(head, []byte(";")) > bytes.Count(head, []byte(",")) {
		return ';'
	}
	return ','
}
