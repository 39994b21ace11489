package explorer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/imglens/imglens/query"
	"github.com/imglens/imglens/store"
)

// Result is a tabular view of matches or items, ready for rendering.
type Result struct {
	Columns []string
	Rows    [][]string
}

// TabulateMatches renders matches with their distances.
func TabulateMatches(matches []Match) Result {
	res := Result{Columns: []string{"index", "distance", "file_path", "split", "labels"}}
	for _, m := range matches {
		res.Rows = append(res.Rows, []string{
			strconv.Itoa(m.Item.Index),
			strconv.FormatFloat(m.Distance, 'f', 4, 64),
			m.Item.FilePath,
			m.Item.Split,
			strings.Join(m.Item.Labels, ","),
		})
	}
	return res
}

// TabulateItems renders items from a predicate query, metadata included.
func TabulateItems(items []store.Item) Result {
	res := Result{Columns: []string{"index", "file_path", "split", "labels", "meta"}}
	for _, it := range items {
		res.Rows = append(res.Rows, []string{
			strconv.Itoa(it.Index),
			it.FilePath,
			it.Split,
			strings.Join(it.Labels, ","),
			renderMeta(it.Meta),
		})
	}
	return res
}

func renderMeta(meta query.Document) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + meta[k].GoString()
	}
	return strings.Join(parts, " ")
}
