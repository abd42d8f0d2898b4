package query

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Filter is a compiled query predicate.
type Filter struct {
	root matcher
}

type matcher interface {
	match(doc gjson.Result) bool
}

// predicate tests the values found at a path. vals is empty when the path
// is missing.
type predicate func(vals []gjson.Result) bool

// CompileFilter compiles a JSON filter. An empty input matches everything.
func CompileFilter(raw []byte) (*Filter, error) {
	v, ok := parse(raw)
	if !ok {
		if len(strings.TrimSpace(string(raw))) == 0 {
			return &Filter{root: allOf(nil)}, nil
		}
		return nil, errorf("filter is not valid JSON")
	}
	m, err := compileObject(v)
	if err != nil {
		return nil, err
	}
	return &Filter{root: m}, nil
}

// Match reports whether doc satisfies the filter.
func (f *Filter) Match(doc []byte) bool {
	return f.root.match(gjson.ParseBytes(doc))
}

// MatchResult is Match for an already parsed document.
func (f *Filter) MatchResult(doc gjson.Result) bool {
	return f.root.match(doc)
}

type allOf []matcher

func (a allOf) match(doc gjson.Result) bool {
	for _, m := range a {
		if !m.match(doc) {
			return false
		}
	}
	return true
}

type anyOf []matcher

func (a anyOf) match(doc gjson.Result) bool {
	for _, m := range a {
		if m.match(doc) {
			return true
		}
	}
	return false
}

type noneOf []matcher

func (n noneOf) match(doc gjson.Result) bool {
	return !anyOf(n).match(doc)
}

type fieldMatcher struct {
	path  []string
	preds []predicate
}

func (f *fieldMatcher) match(doc gjson.Result) bool {
	vals := lookup(doc, f.path)
	for _, p := range f.preds {
		if !p(vals) {
			return false
		}
	}
	return true
}

func compileObject(v gjson.Result) (matcher, error) {
	if !v.IsObject() {
		return nil, errorf("filter must be an object")
	}

	var (
		out allOf
		err error
	)
	v.ForEach(func(k, val gjson.Result) bool {
		var m matcher
		if strings.HasPrefix(k.Str, "$") {
			m, err = compileLogical(k.Str, val)
		} else {
			m, err = compileField(k.Str, val)
		}
		if err != nil {
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func compileLogical(op string, val gjson.Result) (matcher, error) {
	switch op {
	case "$and", "$or", "$nor":
	default:
		return nil, errorf("unknown top level operator: %s", op)
	}
	if !val.IsArray() || len(val.Array()) == 0 {
		return nil, errorf("%s must be a nonempty array", op)
	}

	var subs []matcher
	for _, el := range val.Array() {
		m, err := compileObject(el)
		if err != nil {
			return nil, err
		}
		subs = append(subs, m)
	}

	switch op {
	case "$and":
		return allOf(subs), nil
	case "$or":
		return anyOf(subs), nil
	default:
		return noneOf(subs), nil
	}
}

func compileField(path string, val gjson.Result) (matcher, error) {
	fm := &fieldMatcher{path: splitPath(path)}
	if !isOperatorObject(val) {
		fm.preds = []predicate{eqPredicate(val)}
		return fm, nil
	}
	preds, err := compileOperators(val)
	if err != nil {
		return nil, err
	}
	fm.preds = preds
	return fm, nil
}

func compileOperators(expr gjson.Result) ([]predicate, error) {
	var (
		preds []predicate
		err   error
	)
	options := ""
	if o, ok := field(expr, "$options"); ok {
		options = o.Str
	}

	expr.ForEach(func(k, arg gjson.Result) bool {
		var p predicate
		p, err = compileOperator(k.Str, arg, options)
		if err != nil {
			return false
		}
		if p != nil {
			preds = append(preds, p)
		}
		return true
	})
	return preds, err
}

func compileOperator(op string, arg gjson.Result, options string) (predicate, error) {
	switch op {
	case "$eq":
		return eqPredicate(arg), nil
	case "$ne":
		eq := eqPredicate(arg)
		return func(vals []gjson.Result) bool { return !eq(vals) }, nil
	case "$gt", "$gte", "$lt", "$lte":
		return cmpPredicate(op, arg), nil
	case "$in", "$nin":
		if !arg.IsArray() {
			return nil, errorf("%s needs an array", op)
		}
		var eqs []predicate
		for _, el := range arg.Array() {
			eqs = append(eqs, eqPredicate(el))
		}
		in := func(vals []gjson.Result) bool {
			for _, eq := range eqs {
				if eq(vals) {
					return true
				}
			}
			return false
		}
		if op == "$nin" {
			return func(vals []gjson.Result) bool { return !in(vals) }, nil
		}
		return in, nil
	case "$exists":
		want := isTruthy(arg)
		return func(vals []gjson.Result) bool { return (len(vals) > 0) == want }, nil
	case "$size":
		if arg.Type != gjson.Number || arg.Num != float64(int(arg.Num)) || arg.Num < 0 {
			return nil, errorf("$size needs a non-negative integer")
		}
		n := int(arg.Num)
		return func(vals []gjson.Result) bool {
			for _, v := range vals {
				if v.IsArray() && len(v.Array()) == n {
					return true
				}
			}
			return false
		}, nil
	case "$all":
		if !arg.IsArray() {
			return nil, errorf("$all needs an array")
		}
		var eqs []predicate
		for _, el := range arg.Array() {
			eqs = append(eqs, eqPredicate(el))
		}
		return func(vals []gjson.Result) bool {
			if len(eqs) == 0 {
				return false
			}
			for _, eq := range eqs {
				if !eq(vals) {
					return false
				}
			}
			return true
		}, nil
	case "$elemMatch":
		return elemMatchPredicate(arg)
	case "$not":
		if !isOperatorObject(arg) {
			return nil, errorf("$not needs a document")
		}
		inner, err := compileOperators(arg)
		if err != nil {
			return nil, err
		}
		return func(vals []gjson.Result) bool {
			for _, p := range inner {
				if !p(vals) {
					return true
				}
			}
			return false
		}, nil
	case "$regex":
		if arg.Type != gjson.String {
			return nil, errorf("$regex has to be a string")
		}
		return regexPredicate(arg.Str, options)
	case "$options":
		return nil, nil
	}
	return nil, errorf("unknown operator: %s", op)
}

// eqPredicate matches when any value, or any element of an array value,
// equals target. A null target also matches a missing path.
func eqPredicate(target gjson.Result) predicate {
	return func(vals []gjson.Result) bool {
		if len(vals) == 0 {
			return typeRank(target) == rankNull
		}
		for _, v := range expand(vals) {
			if Equal(v, target) {
				return true
			}
		}
		return false
	}
}

// cmpPredicate compares values of the same type class as target only.
func cmpPredicate(op string, target gjson.Result) predicate {
	rank := typeRank(target)
	return func(vals []gjson.Result) bool {
		for _, v := range expand(vals) {
			if typeRank(v) != rank {
				continue
			}
			c := Compare(v, target)
			switch op {
			case "$gt":
				if c > 0 {
					return true
				}
			case "$gte":
				if c >= 0 {
					return true
				}
			case "$lt":
				if c < 0 {
					return true
				}
			case "$lte":
				if c <= 0 {
					return true
				}
			}
		}
		return false
	}
}

func elemMatchPredicate(arg gjson.Result) (predicate, error) {
	if !arg.IsObject() {
		return nil, errorf("$elemMatch needs an Object")
	}

	// {$gt: 1} style criteria apply to scalar elements.
	if isOperatorObject(arg) {
		preds, err := compileOperators(arg)
		if err != nil {
			return nil, err
		}
		return func(vals []gjson.Result) bool {
			for _, v := range vals {
				if !v.IsArray() {
					continue
				}
				for _, el := range v.Array() {
					ok := true
					for _, p := range preds {
						if !p([]gjson.Result{el}) {
							ok = false
							break
						}
					}
					if ok {
						return true
					}
				}
			}
			return false
		}, nil
	}

	m, err := compileObject(arg)
	if err != nil {
		return nil, err
	}
	return func(vals []gjson.Result) bool {
		for _, v := range vals {
			if !v.IsArray() {
				continue
			}
			for _, el := range v.Array() {
				if el.IsObject() && m.match(el) {
					return true
				}
			}
		}
		return false
	}, nil
}

func regexPredicate(pattern, options string) (predicate, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		default:
			return nil, errorf("invalid flag in regex options: %c", o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errorf("invalid regular expression: %v", err)
	}
	return func(vals []gjson.Result) bool {
		for _, v := range expand(vals) {
			if v.Type == gjson.String && re.MatchString(v.Str) {
				return true
			}
		}
		return false
	}, nil
}
