package project

import (
	"reflect"
	"testing"
)

func TestProjectInfersColumnKinds(t *testing.T) {
	columns := []string{"name", "age", "score", "active", "admitted"}
	rows := [][]any{
		{"Ada", int64(36), 0.91, true, "2024-03-01T10:00:00Z"},
		{"Grace", int64(44), 0.72, false, "2024-03-02T09:30:00Z"},
		{nil, int64(51), nil, true, nil},
	}

	table := Project(columns, rows)

	if table.RowCount != 3 {
		t.Fatalf("RowCount = %d, want 3", table.RowCount)
	}
	want := []Column{
		{Name: "name", Kind: KindText},
		{Name: "age", Kind: KindInteger},
		{Name: "score", Kind: KindReal},
		{Name: "active", Kind: KindBool},
		{Name: "admitted", Kind: KindTime},
	}
	if !reflect.DeepEqual(table.Columns, want) {
		t.Fatalf("columns = %#v, want %#v", table.Columns, want)
	}
}

func TestProjectWidensMixedNumericColumns(t *testing.T) {
	table := Project([]string{"v"}, [][]any{{int64(1)}, {2.5}})
	if table.Columns[0].Kind != KindReal {
		t.Fatalf("kind = %s, want real", table.Columns[0].Kind)
	}

	mixed := Project([]string{"v"}, [][]any{{int64(1)}, {"oops"}})
	if mixed.Columns[0].Kind != KindText {
		t.Fatalf("kind = %s, want text for mixed values", mixed.Columns[0].Kind)
	}
}

func TestProjectEmptyResult(t *testing.T) {
	table := Project([]string{"n"}, nil)
	if table.RowCount != 0 || table.Rows == nil {
		t.Fatalf("empty table = %#v", table)
	}
	if table.Columns[0].Kind != KindText {
		t.Fatalf("kind for valueless column = %s, want text", table.Columns[0].Kind)
	}
}

func TestSummarizeNumericColumns(t *testing.T) {
	table := Project([]string{"age"}, [][]any{
		{int64(30)}, {int64(40)}, {int64(50)}, {nil},
	})

	stats := Summarize(table)
	if stats.RowCount != 4 {
		t.Fatalf("RowCount = %d, want 4", stats.RowCount)
	}
	age, ok := stats.Numeric["age"]
	if !ok {
		t.Fatalf("no numeric stats for age: %#v", stats)
	}
	if age.Min != 30 || age.Max != 50 || age.Mean != 40 {
		t.Fatalf("age stats = %+v", age)
	}
	if age.Min > age.Mean || age.Mean > age.Max {
		t.Fatalf("min <= mean <= max violated: %+v", age)
	}
}

func TestSummarizeCategoricalColumns(t *testing.T) {
	table := Project([]string{"city"}, [][]any{
		{"Vienna"}, {"Vienna"}, {"Graz"}, {"Linz"}, {"Graz"}, {"Vienna"},
	})

	stats := Summarize(table)
	city, ok := stats.Categorical["city"]
	if !ok {
		t.Fatalf("no categorical stats for city: %#v", stats)
	}
	if city.DistinctCount != 3 {
		t.Fatalf("DistinctCount = %d, want 3", city.DistinctCount)
	}
	want := []ValueCount{
		{Value: "Vienna", Count: 3},
		{Value: "Graz", Count: 2},
		{Value: "Linz", Count: 1},
	}
	if !reflect.DeepEqual(city.TopValues, want) {
		t.Fatalf("TopValues = %#v, want %#v", city.TopValues, want)
	}
}

func TestSummarizeTopValuesTieBreakIsDeterministic(t *testing.T) {
	rows := [][]any{
		{"b"}, {"a"}, {"c"}, {"a"}, {"b"}, {"c"},
		{"d"}, {"e"}, {"f"}, {"g"},
	}
	table := Project([]string{"tag"}, rows)

	first := Summarize(table).Categorical["tag"]
	second := Summarize(table).Categorical["tag"]
	if !reflect.DeepEqual(first, second) {
		t.Fatal("summaries differ across runs")
	}
	if len(first.TopValues) != 5 {
		t.Fatalf("TopValues length = %d, want 5", len(first.TopValues))
	}
	want := []ValueCount{
		{Value: "a", Count: 2},
		{Value: "b", Count: 2},
		{Value: "c", Count: 2},
		{Value: "d", Count: 1},
		{Value: "e", Count: 1},
	}
	if !reflect.DeepEqual(first.TopValues, want) {
		t.Fatalf("TopValues = %#v, want %#v", first.TopValues, want)
	}
}
