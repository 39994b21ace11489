package main

import (
	"testing"

	"github.com/imglens/imglens/query"
)

func TestParseFilter(t *testing.T) {
	doc := query.Document{
		"split":  query.String("train"),
		"width":  query.Int(64),
		"labels": query.Strings("cat", "kitten"),
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"split = train", true},
		{"split == train", true},
		{"split = val", false},
		{"split != val", true},
		{"split != train", false},
		{"width > 32", true},
		{"width > 64", false},
		{"width >= 64", true},
		{"width < 128", true},
		{"width <= 64", true},
		{"width <= 63", false},
		{"split ~ tra%", true},
		{"split like %ain", true},
		{"split like %x%", false},
		{"labels contains cat", true},
		{"labels contains dog", false},
		{"split in train,val", true},
		{"split in val,test", false},
		{`split = "train"`, true},
		{`width = '64'`, false},
	}
	for _, tc := range tests {
		p, err := parseFilter(tc.expr)
		if err != nil {
			t.Fatalf("parseFilter(%q): %v", tc.expr, err)
		}
		if got := query.Matches(p, doc); got != tc.want {
			t.Errorf("filter %q matched %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseFilterErrors(t *testing.T) {
	for _, expr := range []string{"", "split", "split =", "split @ train"} {
		if _, err := parseFilter(expr); err == nil {
			t.Errorf("parseFilter(%q): want error", expr)
		}
	}
}

func TestParseFiltersAnd(t *testing.T) {
	doc := query.Document{
		"split": query.String("train"),
		"width": query.Int(64),
	}
	p, err := parseFilters([]string{"split = train", "width > 32"})
	if err != nil {
		t.Fatal(err)
	}
	if !query.Matches(p, doc) {
		t.Error("conjunction should match")
	}
	p, err = parseFilters([]string{"split = train", "width > 100"})
	if err != nil {
		t.Fatal(err)
	}
	if query.Matches(p, doc) {
		t.Error("conjunction with a failing clause should not match")
	}

	p, err = parseFilters(nil)
	if err != nil || p != nil {
		t.Errorf("parseFilters(nil) = %v, %v; want nil, nil", p, err)
	}
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector("0.5, 1, -2")
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0.5, 1, -2}
	if len(vec) != len(want) {
		t.Fatalf("got %d components, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("component %d = %v, want %v", i, vec[i], want[i])
		}
	}

	if _, err := parseVector(""); err == nil {
		t.Error("empty vector: want error")
	}
	if _, err := parseVector("1,x,3"); err == nil {
		t.Error("non-numeric component: want error")
	}
}

func TestParseIndices(t *testing.T) {
	got, err := parseIndices([]string{"0", "12"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 12 {
		t.Errorf("parseIndices = %v, want [0 12]", got)
	}
	if _, err := parseIndices([]string{"one"}); err == nil {
		t.Error("non-numeric index: want error")
	}
}
