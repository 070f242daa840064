package registry

import (
	"fmt"
	"sort"
	"time"
)

// FilterState is the set of user selections applied to a view. Start and End
// are calendar days, both inclusive; a zero bound is open. An empty selection
// for a field places no restriction on it.
type FilterState struct {
	Start      time.Time
	End        time.Time
	Selections map[Field][]string
}

// Validate checks that every selection names a filterable field the role is
// allowed to use.
func (f FilterState) Validate(role Role) error {
	for field, values := range f.Selections {
		spec, ok := Spec(field)
		if !ok || !spec.Filterable {
			return fmt.Errorf("%w: %s", ErrUnknownFilterField, field)
		}
		if spec.ScopeLocal && len(values) > 0 && !role.Privileged() {
			return ErrSellerFilterForbidden
		}
	}
	return nil
}

// Global projects the state onto the privacy-safe fields that may be
// replayed against the unrestricted table.
func (f FilterState) Global() FilterState {
	out := FilterState{Start: f.Start, End: f.End}
	for field, values := range f.Selections {
		spec, ok := Spec(field)
		if !ok || !spec.PrivacySafe || !spec.Filterable || len(values) == 0 {
			continue
		}
		if out.Selections == nil {
			out.Selections = make(map[Field][]string)
		}
		out.Selections[field] = append([]string(nil), values...)
	}
	return out
}

// DateOnly keeps the date range and drops every selection.
func (f FilterState) DateOnly() FilterState {
	return FilterState{Start: f.Start, End: f.End}
}

type selection struct {
	field  Field
	values map[string]struct{}
}

// ApplyFilters returns the rows of t matching every predicate of f.
// Selections on columns absent from t do not apply.
func ApplyFilters(t Table, f FilterState) Table {
	start, end := day(f.Start), day(f.End)
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return t.Empty()
	}

	var active []selection
	for _, field := range FilterableFields() {
		values := f.Selections[field]
		if len(values) == 0 || !t.Has(field) {
			continue
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		active = append(active, selection{field: field, values: set})
	}

	if start.IsZero() && end.IsZero() && len(active) == 0 {
		return t
	}

	return t.Where(func(r Row) bool {
		d := day(r.Date)
		if !start.IsZero() && d.Before(start) {
			return false
		}
		if !end.IsZero() && d.After(end) {
			return false
		}
		for _, sel := range active {
			v := r.Text(sel.field)
			if !v.Valid {
				return false
			}
			if _, ok := sel.values[v.Value]; !ok {
				return false
			}
		}
		return true
	})
}

// Options lists the distinct non-empty values of field in t, sorted.
func Options(t Table, field Field) []string {
	if !t.Has(field) {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range t.rows {
		v := r.Text(field)
		if !v.Valid || v.Value == "" {
			continue
		}
		if _, ok := seen[v.Value]; ok {
			continue
		}
		seen[v.Value] = struct{}{}
		out = append(out, v.Value)
	}
	sort.Strings(out)
	return out
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
