package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixtureHeader = []string{
	"TescilTarihi", "SaticiSicilNo", "UrunAdi", "Tutar", "Miktar", "Fiyat",
	"MahsulYili", "AnaGrupAdi", "KotasyonDurumu", "SaticiUyeDurumu",
}

// fixtureTable holds three sellers over two months.
func fixtureTable(t *testing.T) Table {
	t.Helper()
	raw := RawTable{
		Header: fixtureHeader,
		Records: [][]string{
			{"2024-01-15", "S1", "Buğday", "100", "10", "10", "2023", "Hububat", "Kotasyonlu", "Aktif"},
			{"2024-01-20", "S2", "Arpa", "300", "30", "10", "2023", "Hububat", "nan", "Aktif"},
			{"2024-02-10", "S1", "Pamuk", "50", "5", "10", "2024", "Lif", "Kotasyonsuz", "Pasif"},
			{"2024-02-11", "S3", "Buğday", "200", "", "", "2024", "Hububat", "Kotasyonlu", "Aktif"},
		},
	}
	table, err := Normalize(raw, DefaultRequiredColumns())
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())
	return table
}

func row(date string, seller string, amount, qty float64) Row {
	d, _ := time.Parse("2006-01-02", date)
	return Row{
		Date:     d,
		SellerID: seller,
		Numbers:  map[Field]Number{FieldAmount: Num(amount), FieldQuantity: Num(qty)},
	}
}

func baseColumns() []string { return DefaultRequiredColumns() }

func sellers(t Table) []string {
	out := make([]string, 0, t.Len())
	for _, r := range t.Rows() {
		out = append(out, r.SellerID)
	}
	return out
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
