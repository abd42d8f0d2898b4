package query

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Cross-type ordering ranks. Missing values sort with null.
const (
	rankNull = iota + 1
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
)

func typeRank(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return rankNumber
	case gjson.String:
		return rankString
	case gjson.True, gjson.False:
		return rankBool
	case gjson.JSON:
		if v.IsArray() {
			return rankArray
		}
		return rankObject
	}
	return rankNull
}

// Compare orders two JSON values: null < numbers < strings < objects <
// arrays < booleans. Objects compare pairwise in key order, arrays
// element-wise.
func Compare(a, b gjson.Result) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}

	switch ra {
	case rankNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.Str, b.Str)
	case rankBool:
		return cmpInt(boolInt(a.Bool()), boolInt(b.Bool()))
	case rankArray:
		ae, be := a.Array(), b.Array()
		for i := 0; i < len(ae) && i < len(be); i++ {
			if c := Compare(ae[i], be[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ae), len(be))
	case rankObject:
		ap, bp := pairs(a), pairs(b)
		for i := 0; i < len(ap) && i < len(bp); i++ {
			if c := strings.Compare(ap[i][0].Str, bp[i][0].Str); c != 0 {
				return c
			}
			if c := Compare(ap[i][1], bp[i][1]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ap), len(bp))
	}
	return 0
}

// Equal reports whether two JSON values are the same value.
func Equal(a, b gjson.Result) bool {
	return Compare(a, b) == 0
}

func pairs(obj gjson.Result) [][2]gjson.Result {
	var out [][2]gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		out = append(out, [2]gjson.Result{k, v})
		return true
	})
	return out
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// field returns the member key of an object.
// Keys are matched literally, so names holding path syntax are safe.
func field(obj gjson.Result, key string) (gjson.Result, bool) {
	if !obj.IsObject() {
		return gjson.Result{}, false
	}
	var (
		out   gjson.Result
		found bool
	)
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out, found = v, true
			return false
		}
		return true
	})
	return out, found
}

// lookup resolves a dotted path. Arrays met before the last component fan
// out over their object elements unless the component is an index.
func lookup(v gjson.Result, parts []string) []gjson.Result {
	if len(parts) == 0 {
		return []gjson.Result{v}
	}
	head, rest := parts[0], parts[1:]

	switch {
	case v.IsObject():
		child, ok := field(v, head)
		if !ok {
			return nil
		}
		return lookup(child, rest)
	case v.IsArray():
		elems := v.Array()
		if idx, err := strconv.Atoi(head); err == nil && idx >= 0 {
			if idx < len(elems) {
				return lookup(elems[idx], rest)
			}
			return nil
		}
		var out []gjson.Result
		for _, el := range elems {
			if el.IsObject() {
				out = append(out, lookup(el, parts)...)
			}
		}
		return out
	}
	return nil
}

// expand returns vals plus the elements of every array among them.
func expand(vals []gjson.Result) []gjson.Result {
	out := make([]gjson.Result, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
		if v.IsArray() {
			out = append(out, v.Array()...)
		}
	}
	return out
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// writePath converts dotted path parts to an sjson/gjson path.
// Components holding path metacharacters are refused.
func writePath(parts []string) (string, error) {
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			return "", errorf("empty field name in path '%s'", strings.Join(parts, "."))
		}
		if strings.ContainsAny(p, "|#@*?\\") {
			return "", errorf("unsupported character in field name '%s'", p)
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

// isOperatorObject reports whether v is an object whose first key starts
// with '$'.
func isOperatorObject(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	op := false
	v.ForEach(func(k, _ gjson.Result) bool {
		op = strings.HasPrefix(k.Str, "$")
		return false
	})
	return op
}

func isTruthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	}
	return false
}

// numberRaw renders n as an integer when it is integral.
func numberRaw(n float64) string {
	if n == float64(int64(n)) && n < 1<<53 && n > -(1<<53) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
