package query

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

type sortKey struct {
	path []string
	desc bool
}

// Sort is a compiled multi-key ordering.
type Sort struct {
	keys []sortKey
}

// CompileSort compiles {field: 1|-1, ...}. An empty input yields no
// ordering.
func CompileSort(raw []byte) (*Sort, error) {
	s := &Sort{}
	v, ok := parse(raw)
	if !ok {
		if len(strings.TrimSpace(string(raw))) == 0 {
			return s, nil
		}
		return nil, errorf("sort is not valid JSON")
	}
	if !v.IsObject() {
		return nil, errorf("sort must be an object")
	}

	var err error
	v.ForEach(func(k, dir gjson.Result) bool {
		if dir.Type != gjson.Number || (dir.Num != 1 && dir.Num != -1) {
			err = errorf("$sort key ordering must be 1 (for ascending) or -1 (for descending)")
			return false
		}
		s.keys = append(s.keys, sortKey{path: splitPath(k.Str), desc: dir.Num < 0})
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IsEmpty reports whether the sort has no keys.
func (s *Sort) IsEmpty() bool {
	return len(s.keys) == 0
}

// Apply orders docs in place. The sort is stable.
func (s *Sort) Apply(docs [][]byte) {
	if s.IsEmpty() || len(docs) < 2 {
		return
	}
	parsed := make([]gjson.Result, len(docs))
	for i, d := range docs {
		parsed[i] = gjson.ParseBytes(d)
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.less(parsed[idx[a]], parsed[idx[b]])
	})

	sorted := make([][]byte, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func (s *Sort) less(a, b gjson.Result) bool {
	for _, k := range s.keys {
		c := Compare(sortValue(a, k), sortValue(b, k))
		if c == 0 {
			continue
		}
		if k.desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// sortValue picks the value a document sorts by: the smallest candidate
// ascending, the largest descending, null when missing.
func sortValue(doc gjson.Result, k sortKey) gjson.Result {
	vals := lookup(doc, k.path)
	if len(vals) == 0 {
		return gjson.Result{}
	}
	best := vals[0]
	for _, v := range vals[1:] {
		c := Compare(v, best)
		if (k.desc && c > 0) || (!k.desc && c < 0) {
			best = v
		}
	}
	return best
}
