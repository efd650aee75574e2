// Package project shapes raw sandbox rows into the tabular result the
// API returns, and derives summary statistics so the caller sees the
// shape of an answer without scanning every row.
package project

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ColumnKind is the inferred type of one result column.
type ColumnKind string

const (
	KindInteger ColumnKind = "integer"
	KindReal    ColumnKind = "real"
	KindText    ColumnKind = "text"
	KindBool    ColumnKind = "bool"
	KindTime    ColumnKind = "time"
)

// Column pairs a result column name with its inferred kind.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// TabularResult is an ordered, fully materialized result table.
type TabularResult struct {
	Columns  []Column `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// NumericStats summarizes one numeric column.
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// ValueCount is one entry of a categorical top-values list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalStats summarizes one non-numeric column.
type CategoricalStats struct {
	DistinctCount int          `json:"distinct_count"`
	TopValues     []ValueCount `json:"top_values"`
}

// SummaryStats carries per-column summaries keyed by column name.
type SummaryStats struct {
	RowCount    int                         `json:"row_count"`
	Numeric     map[string]NumericStats     `json:"numeric,omitempty"`
	Categorical map[string]CategoricalStats `json:"categorical,omitempty"`
}

const topValueCount = 5

// Project infers a kind for each column from the values it holds and
// returns the ordered table. Row order is preserved.
func Project(columns []string, rows [][]any) TabularResult {
	result := TabularResult{
		Columns:  make([]Column, len(columns)),
		Rows:     rows,
		RowCount: len(rows),
	}
	if result.Rows == nil {
		result.Rows = [][]any{}
	}
	for i, name := range columns {
		result.Columns[i] = Column{Name: name, Kind: inferKind(rows, i)}
	}
	return result
}

// inferKind picks the narrowest kind consistent with every non-nil
// value in the column. A column of only NULLs is text.
func inferKind(rows [][]any, col int) ColumnKind {
	kind := ColumnKind("")
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		vk := valueKind(row[col])
		switch {
		case kind == "":
			kind = vk
		case kind == vk:
		case kind == KindInteger && vk == KindReal, kind == KindReal && vk == KindInteger:
			kind = KindReal
		default:
			return KindText
		}
	}
	if kind == "" {
		return KindText
	}
	return kind
}

func valueKind(value any) ColumnKind {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float32, float64:
		return KindReal
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return KindTime
		}
		return KindText
	default:
		return KindText
	}
}

// Summarize computes per-column statistics for a projected table.
// Numeric columns get min/max/mean; every other column gets a distinct
// count and its most frequent values. Ties in the top-values list break
// on the value itself so the output is deterministic.
func Summarize(table TabularResult) SummaryStats {
	stats := SummaryStats{
		RowCount:    table.RowCount,
		Numeric:     make(map[string]NumericStats),
		Categorical: make(map[string]CategoricalStats),
	}

	for i, column := range table.Columns {
		if column.Kind == KindInteger || column.Kind == KindReal {
			if ns, ok := numericStats(table.Rows, i); ok {
				stats.Numeric[column.Name] = ns
			}
			continue
		}
		stats.Categorical[column.Name] = categoricalStats(table.Rows, i)
	}

	if len(stats.Numeric) == 0 {
		stats.Numeric = nil
	}
	if len(stats.Categorical) == 0 {
		stats.Categorical = nil
	}
	return stats
}

func numericStats(rows [][]any, col int) (NumericStats, bool) {
	var (
		count int
		sum   float64
		ns    NumericStats
	)
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		value, ok := asFloat(row[col])
		if !ok {
			continue
		}
		if count == 0 {
			ns.Min, ns.Max = value, value
		} else {
			if value < ns.Min {
				ns.Min = value
			}
			if value > ns.Max {
				ns.Max = value
			}
		}
		sum += value
		count++
	}
	if count == 0 {
		return NumericStats{}, false
	}
	ns.Mean = sum / float64(count)
	return ns, true
}

func categoricalStats(rows [][]any, col int) CategoricalStats {
	counts := make(map[string]int)
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		counts[renderValue(row[col])]++
	}

	values := make([]ValueCount, 0, len(counts))
	for value, count := range counts {
		values = append(values, ValueCount{Value: value, Count: count})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	if len(values) > topValueCount {
		values = values[:topValueCount]
	}
	if len(values) == 0 {
		values = nil
	}
	return CategoricalStats{DistinctCount: len(counts), TopValues: values}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
