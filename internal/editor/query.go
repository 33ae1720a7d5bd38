package editor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

// FilterKind names a where-clause filter the query builder can apply to a column.
type FilterKind string

const (
	FilterUnfiltered  FilterKind = "unfiltered"
	FilterEquals      FilterKind = "equals"
	FilterGreaterThan FilterKind = "greaterThan"
	FilterLessThan    FilterKind = "lessThan"
	FilterBetween     FilterKind = "between"
	FilterIn          FilterKind = "in"
)

// Label is the display name of the filter.
func (k FilterKind) Label() string {
	switch k {
	case FilterUnfiltered:
		return "Unfiltered"
	case FilterEquals:
		return "Equal To"
	case FilterGreaterThan:
		return "Greater Than"
	case FilterLessThan:
		return "Less Than"
	case FilterBetween:
		return "Between"
	case FilterIn:
		return "In"
	default:
		return string(k)
	}
}

var (
	numericFilters = []FilterKind{FilterUnfiltered, FilterEquals, FilterGreaterThan, FilterLessThan, FilterBetween, FilterIn}
	textFilters    = []FilterKind{FilterUnfiltered, FilterIn, FilterEquals}

	filtersByColumnType = map[string][]FilterKind{
		"byte":    {FilterUnfiltered, FilterEquals, FilterLessThan, FilterBetween, FilterIn},
		"integer": numericFilters,
		"int":     numericFilters,
		"short":   numericFilters,
		"long":    numericFilters,
		"float":   numericFilters,
		"double":  numericFilters,
		"char":    textFilters,
		"in":      textFilters,
		"string":  textFilters,
		"enum":    textFilters,
	}
)

// FiltersFor returns the filters that apply to a column type. Array columns
// cannot be filtered.
func FiltersFor(columnType string) []FilterKind {
	t := strings.ReplaceAll(columnType, "?", "")
	switch {
	case strings.Contains(t, "["):
		return nil
	case strings.Contains(t, "enum"):
		return filtersByColumnType["enum"]
	default:
		return filtersByColumnType[t]
	}
}

// ColumnFilter restricts the rows returned for one column.
type ColumnFilter struct {
	Column string     `json:"column"`
	Kind   FilterKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Min    string     `json:"min,omitempty"`
	Max    string     `json:"max,omitempty"`
	Values []string   `json:"values,omitempty"`
}

// QuerySelection is the structured state of a sql input: a table, the columns
// to extract and the filters to apply.
type QuerySelection struct {
	Table   string         `json:"table"`
	Columns []string       `json:"columns"`
	Filters []ColumnFilter `json:"filters,omitempty"`
}

// SQL renders the selection as a query against table.
func (q QuerySelection) SQL(table models.TableSchema) string {
	var where []string
	for _, f := range q.Filters {
		col, _ := table.Column(f.Column)
		if clause := f.clause(col); clause != "" {
			where = append(where, clause)
		}
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "\nwhere " + strings.Join(where, " and\n")
	}
	return fmt.Sprintf("select %s\nfrom %s%s;", strings.Join(q.Columns, ", "), table.ID, whereClause)
}

func (f ColumnFilter) clause(col models.ColumnSchema) string {
	quote := func(v string) string { return v }
	if col.Type == "string" || strings.HasPrefix(col.Type, "enum") {
		quote = func(v string) string { return "'" + strings.ReplaceAll(v, "'", "''") + "'" }
	}
	switch f.Kind {
	case FilterEquals:
		return fmt.Sprintf("%s = %s", f.Column, quote(f.Value))
	case FilterGreaterThan:
		return fmt.Sprintf("%s > %s", f.Column, f.Value)
	case FilterLessThan:
		return fmt.Sprintf("%s < %s", f.Column, f.Value)
	case FilterBetween:
		return fmt.Sprintf("%s < %s and %s < %s", f.Min, f.Column, f.Column, f.Max)
	case FilterIn:
		vals := make([]string, len(f.Values))
		for i, v := range f.Values {
			vals[i] = quote(v)
		}
		return fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(vals, ", "))
	default:
		return ""
	}
}

func (q QuerySelection) validate(in models.ExpectedInput) (models.TableSchema, []string) {
	var table models.TableSchema
	found := false
	for _, t := range in.Tables {
		if t.ID == q.Table {
			table, found = t, true
			break
		}
	}
	if !found {
		return table, []string{fmt.Sprintf("'%s' is not one of the available tables", q.Table)}
	}

	var errs []string
	for _, c := range q.Columns {
		if _, ok := table.Column(c); !ok {
			errs = append(errs, fmt.Sprintf("'%s' is not a column of table '%s'", c, table.ID))
		}
	}
	for _, f := range q.Filters {
		col, ok := table.Column(f.Column)
		if !ok {
			errs = append(errs, fmt.Sprintf("cannot filter on '%s': not a column of table '%s'", f.Column, table.ID))
			continue
		}
		if !filterAllowed(col.Type, f.Kind) {
			errs = append(errs, fmt.Sprintf("cannot apply a '%s' filter to column '%s' (type %s)", f.Kind, col.ID, col.Type))
			continue
		}
		errs = append(errs, f.operandErrors(col)...)
	}
	return table, errs
}

// operandErrors checks that the filter carries the operands its kind needs
// and that operands on numeric columns are numbers.
func (f ColumnFilter) operandErrors(col models.ColumnSchema) []string {
	var operands []string
	switch f.Kind {
	case FilterEquals, FilterGreaterThan, FilterLessThan:
		if strings.TrimSpace(f.Value) == "" {
			return []string{fmt.Sprintf("the '%s' filter on column '%s' needs a value", f.Kind, col.ID)}
		}
		operands = []string{f.Value}
	case FilterBetween:
		if strings.TrimSpace(f.Min) == "" || strings.TrimSpace(f.Max) == "" {
			return []string{fmt.Sprintf("the 'between' filter on column '%s' needs a min and a max", col.ID)}
		}
		operands = []string{f.Min, f.Max}
	case FilterIn:
		if len(f.Values) == 0 {
			return []string{fmt.Sprintf("the 'in' filter on column '%s' needs at least one value", col.ID)}
		}
		operands = f.Values
	}

	if !numericColumn(col.Type) {
		return nil
	}
	var errs []string
	for _, v := range operands {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			errs = append(errs, fmt.Sprintf("%s: is not a number (column '%s' is %s)", v, col.ID, col.Type))
		}
	}
	return errs
}

// numericColumn reports whether filter operands on a column of this type are
// written unquoted.
func numericColumn(columnType string) bool {
	switch strings.ReplaceAll(columnType, "?", "") {
	case "byte", "integer", "int", "short", "long", "float", "double":
		return true
	}
	return false
}

func hasTable(tables []models.TableSchema, id string) bool {
	for _, t := range tables {
		if t.ID == id {
			return true
		}
	}
	return false
}

func filterAllowed(columnType string, kind FilterKind) bool {
	for _, k := range FiltersFor(columnType) {
		if k == kind {
			return true
		}
	}
	return false
}

func toQuerySelection(v any) (QuerySelection, bool) {
	switch q := v.(type) {
	case QuerySelection:
		return q, true
	case *QuerySelection:
		if q == nil {
			return QuerySelection{}, false
		}
		return *q, true
	case map[string]any:
		if _, ok := q["table"].(string); !ok {
			return QuerySelection{}, false
		}
		data, err := json.Marshal(q)
		if err != nil {
			return QuerySelection{}, false
		}
		var sel QuerySelection
		if err := json.Unmarshal(data, &sel); err != nil {
			return QuerySelection{}, false
		}
		return sel, true
	default:
		return QuerySelection{}, false
	}
}

func coerceQuery(in models.ExpectedInput, suggested any, present bool) *field {
	f := &field{input: in}
	if len(in.Tables) == 0 {
		f.update = Errors("has no tables to query")
		return f
	}

	sel := QuerySelection{Table: in.Tables[0].ID, Columns: []string{}}
	if present {
		s, ok := toQuerySelection(suggested)
		switch {
		case !ok:
			f.warning = "This input has been reset because SQL queries cannot be copied between job requests."
		case !hasTable(in.Tables, s.Table):
			f.warning = fmt.Sprintf("This input has been reset because the table '%s' is not available.", s.Table)
		default:
			sel = s
		}
	}
	f.raw = sel

	table, errs := sel.validate(in)
	switch {
	case len(errs) > 0:
		f.update = Errors(errs...)
	case len(sel.Columns) == 0:
		f.update = Missing()
	default:
		f.update = Value(sel.SQL(table))
	}
	return f
}
