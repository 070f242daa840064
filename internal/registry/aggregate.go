package registry

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownLabel buckets null categorical values in distributions.
const UnknownLabel = "Bilinmiyor"

// Optional is an aggregate that may be undefined. An invalid Optional is a
// result, not an error, and encodes as JSON null.
type Optional struct {
	Value float64
	Valid bool
}

// Available wraps a defined aggregate.
func Available(v float64) Optional { return Optional{Value: v, Valid: true} }

// MarshalJSON implements json.Marshaler.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(o.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Available(v)
	return nil
}

// Count is the number of rows.
func Count(t Table) int { return t.Len() }

// SumNumeric totals field with missing values counted as zero. An absent
// column sums to zero.
func SumNumeric(t Table, field Field) float64 {
	return sumDecimal(t, field).InexactFloat64()
}

func sumDecimal(t Table, field Field) decimal.Decimal {
	total := decimal.Zero
	if !t.Has(field) {
		return total
	}
	for _, r := range t.rows {
		if n := r.Number(field); n.Valid {
			total = total.Add(decimal.NewFromFloat(n.Value))
		}
	}
	return total
}

// UniqueCount counts distinct non-null, non-empty values of field.
func UniqueCount(t Table, field Field) int {
	if !t.Has(field) {
		return 0
	}
	seen := make(map[string]struct{})
	for _, r := range t.rows {
		v := r.Text(field)
		if v.Valid && v.Value != "" {
			seen[v.Value] = struct{}{}
		}
	}
	return len(seen)
}

func anyValid(t Table, field Field) bool {
	if !t.Has(field) {
		return false
	}
	for _, r := range t.rows {
		if r.Number(field).Valid {
			return true
		}
	}
	return false
}

// WeightedAveragePrice is the quantity-weighted unit price. When the table
// carries unit prices and quantities it is Σ(price·qty)/Σqty; otherwise it
// falls back to Σamount/Σqty. A zero denominator on either tier, or no usable
// columns, yields an unavailable result.
func WeightedAveragePrice(t Table) Optional {
	if anyValid(t, FieldUnitPrice) && anyValid(t, FieldQuantity) {
		num, den := decimal.Zero, decimal.Zero
		for _, r := range t.rows {
			q := decimal.NewFromFloat(r.Number(FieldQuantity).OrZero())
			p := decimal.NewFromFloat(r.Number(FieldUnitPrice).OrZero())
			num = num.Add(p.Mul(q))
			den = den.Add(q)
		}
		if den.IsZero() {
			return Optional{}
		}
		return Available(num.Div(den).InexactFloat64())
	}
	if t.Has(FieldAmount) && t.Has(FieldQuantity) {
		den := sumDecimal(t, FieldQuantity)
		if den.IsZero() {
			return Optional{}
		}
		return Available(sumDecimal(t, FieldAmount).Div(den).InexactFloat64())
	}
	return Optional{}
}

// MonthBucket aggregates the rows of one calendar month.
type MonthBucket struct {
	Month       time.Time `json:"month"`
	AmountSum   float64   `json:"amount_sum"`
	QuantitySum float64   `json:"quantity_sum"`
	RowCount    int       `json:"row_count"`
}

// MonthlySeries buckets rows by month of date, ascending, one bucket per
// month present.
func MonthlySeries(t Table) []MonthBucket {
	type acc struct {
		amount, qty decimal.Decimal
		rows        int
	}
	buckets := make(map[time.Time]*acc)
	for _, r := range t.rows {
		y, m, _ := r.Date.Date()
		key := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[key]
		if !ok {
			b = &acc{amount: decimal.Zero, qty: decimal.Zero}
			buckets[key] = b
		}
		b.amount = b.amount.Add(decimal.NewFromFloat(r.Number(FieldAmount).OrZero()))
		b.qty = b.qty.Add(decimal.NewFromFloat(r.Number(FieldQuantity).OrZero()))
		b.rows++
	}

	out := make([]MonthBucket, 0, len(buckets))
	for month, b := range buckets {
		out = append(out, MonthBucket{
			Month:       month,
			AmountSum:   b.amount.InexactFloat64(),
			QuantitySum: b.qty.InexactFloat64(),
			RowCount:    b.rows,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// GroupSum is one entry of a top-N ranking.
type GroupSum struct {
	Value string  `json:"value"`
	Sum   float64 `json:"sum"`
}

// TopNBySum groups t by group, sums amount per group and returns the n
// largest groups. Equal sums keep the order in which the groups were first
// encountered. Null group values are skipped. The second result is false
// when either column is absent.
func TopNBySum(t Table, group, amount Field, n int) ([]GroupSum, bool) {
	if !t.Has(group) || !t.Has(amount) {
		return nil, false
	}
	if n <= 0 {
		return []GroupSum{}, true
	}

	order := make([]string, 0)
	sums := make(map[string]decimal.Decimal)
	for _, r := range t.rows {
		key := r.Text(group)
		if !key.Valid {
			continue
		}
		cur, ok := sums[key.Value]
		if !ok {
			order = append(order, key.Value)
			cur = decimal.Zero
		}
		sums[key.Value] = cur.Add(decimal.NewFromFloat(r.Number(amount).OrZero()))
	}

	sort.SliceStable(order, func(i, j int) bool {
		return sums[order[i]].GreaterThan(sums[order[j]])
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]GroupSum, 0, len(order))
	for _, key := range order {
		out = append(out, GroupSum{Value: key, Sum: sums[key].InexactFloat64()})
	}
	return out, true
}

// ValueCount is one entry of a value distribution.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueDistribution counts rows per value of field, nulls under
// UnknownLabel, most frequent first with ties in first-seen order. The second
// result is false when the column is absent.
func ValueDistribution(t Table, field Field) ([]ValueCount, bool) {
	if !t.Has(field) {
		return nil, false
	}
	order := make([]string, 0)
	counts := make(map[string]int)
	for _, r := range t.rows {
		label := UnknownLabel
		if v := r.Text(field); v.Valid {
			label = v.Value
		}
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	out := make([]ValueCount, 0, len(order))
	for _, label := range order {
		out = append(out, ValueCount{Value: label, Count: counts[label]})
	}
	return out, true
}
