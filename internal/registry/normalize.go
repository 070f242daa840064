package registry

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02.01.2006",
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// excelEpoch is day zero of spreadsheet serial dates (1900 date system).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Normalize validates the required columns and coerces raw cells into typed
// rows. Rows with an unparseable date are dropped. Number and date parsing
// follow the flags the reader set on raw.
func Normalize(raw RawTable, required []string) (Table, error) {
	columns := make([]string, 0, len(raw.Header))
	index := make(map[string]int, len(raw.Header))
	for i, h := range raw.Header {
		name := strings.TrimSpace(h)
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = i
		columns = append(columns, name)
	}

	var missing []string
	for _, c := range required {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Table{}, &SchemaError{Missing: missing, Present: columns}
	}

	type binding struct {
		column string
		pos    int
		spec   FieldSpec
		known  bool
	}
	bindings := make([]binding, 0, len(columns))
	for _, c := range columns {
		spec, known := SpecForColumn(c)
		bindings = append(bindings, binding{column: c, pos: index[c], spec: spec, known: known})
	}

	rows := make([]Row, 0, len(raw.Records))
	for _, rec := range raw.Records {
		cell := func(pos int) string {
			if pos < len(rec) {
				return strings.TrimSpace(rec[pos])
			}
			return ""
		}

		datePos, ok := index[ColumnDate]
		if !ok {
			continue
		}
		date, ok := ParseDate(cell(datePos))
		if !ok && raw.SerialDates {
			date, ok = ParseSerialDate(cell(datePos))
		}
		if !ok {
			continue
		}

		row := Row{Date: date}
		for _, b := range bindings {
			v := cell(b.pos)
			if !b.known {
				if row.Extra == nil {
					row.Extra = make(map[string]string)
				}
				row.Extra[b.column] = v
				continue
			}
			switch b.spec.Kind {
			case KindString:
				switch b.spec.Name {
				case FieldSellerID:
					row.SellerID = v
				case FieldProductName:
					row.ProductName = v
				}
			case KindNumber:
				if row.Numbers == nil {
					row.Numbers = make(map[Field]Number)
				}
				if raw.DecimalComma {
					row.Numbers[b.spec.Name] = ParseDecimalComma(v)
				} else {
					row.Numbers[b.spec.Name] = ParseNumber(v)
				}
			case KindCategory:
				if row.Categories == nil {
					row.Categories = make(map[Field]Text)
				}
				row.Categories[b.spec.Name] = ParseCategory(v)
			}
		}
		rows = append(rows, row)
	}

	return Table{columns: columns, present: presentFields(columns), rows: rows}, nil
}

func presentFields(columns []string) map[Field]bool {
	present := make(map[Field]bool, len(columns))
	for _, c := range columns {
		if spec, ok := SpecForColumn(c); ok {
			present[spec.Name] = true
		}
	}
	return present
}

// ParseDate accepts the textual layouts seen in registry exports. Results
// are UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseSerialDate reads a spreadsheet serial day number, fractions being the
// time of day.
func ParseSerialDate(s string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return time.Time{}, false
	}
	days := math.Floor(serial)
	frac := serial - days
	t := excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(math.Round(frac*86400)) * time.Second)
	return t, true
}

// ParseNumber coerces a cell to a number; anything non-numeric is missing.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Num(v)
}

// ParseDecimalComma coerces a cell written with ',' as the decimal mark and
// optional '.' thousands groups. Misplaced groups make the cell missing.
func ParseDecimalComma(s string) Number {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ".") {
		whole, frac, _ := strings.Cut(s, ",")
		if !validGroups(strings.TrimPrefix(whole, "-")) || strings.Contains(frac, ".") {
			return Number{}
		}
		s = strings.ReplaceAll(s, ".", "")
	}
	return ParseNumber(strings.Replace(s, ",", ".", 1))
}

// validGroups reports whether whole reads like 1.234.567.
func validGroups(whole string) bool {
	groups := strings.Split(whole, ".")
	for i, g := range groups {
		if g == "" || len(g) > 3 || (i > 0 && len(g) != 3) {
			return false
		}
		for _, r := range g {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// ParseCategory trims a categorical cell; blanks and the "nan" placeholder
// left by spreadsheet tooling become null here and nowhere else.
func ParseCategory(s string) Text {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return Text{}
	}
	return Str(s)
}
