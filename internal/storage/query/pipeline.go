package query

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type stage func(docs [][]byte) ([][]byte, error)

// Pipeline is a compiled aggregation pipeline.
type Pipeline struct {
	stages []stage
}

// CompilePipeline compiles a JSON array of stages.
func CompilePipeline(raw []byte) (*Pipeline, error) {
	v, ok := parse(raw)
	if !ok || !v.IsArray() {
		return nil, errorf("'pipeline' option must be specified as an array")
	}

	p := &Pipeline{}
	for _, spec := range v.Array() {
		st, err := compileStage(spec)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

// Run feeds docs through every stage.
func (p *Pipeline) Run(docs [][]byte) ([][]byte, error) {
	out := docs
	var err error
	for _, st := range p.stages {
		if out, err = st(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Aggregate compiles pipeline and runs it over docs.
func Aggregate(docs [][]byte, pipeline []byte) ([][]byte, error) {
	p, err := CompilePipeline(pipeline)
	if err != nil {
		return nil, err
	}
	return p.Run(docs)
}

func compileStage(spec gjson.Result) (stage, error) {
	if !spec.IsObject() || len(pairs(spec)) != 1 {
		return nil, errorf("A pipeline stage specification object must contain exactly one field.")
	}
	kv := pairs(spec)[0]
	name, arg := kv[0].Str, kv[1]

	switch name {
	case "$match":
		if !arg.IsObject() {
			return nil, errorf("the match filter must be an expression in an object")
		}
		f, err := CompileFilter([]byte(arg.Raw))
		if err != nil {
			return nil, err
		}
		return func(docs [][]byte) ([][]byte, error) {
			var out [][]byte
			for _, d := range docs {
				if f.Match(d) {
					out = append(out, d)
				}
			}
			return out, nil
		}, nil

	case "$sort":
		s, err := CompileSort([]byte(arg.Raw))
		if err != nil {
			return nil, err
		}
		if s.IsEmpty() {
			return nil, errorf("$sort stage must have at least one sort key")
		}
		return func(docs [][]byte) ([][]byte, error) {
			out := append([][]byte(nil), docs...)
			s.Apply(out)
			return out, nil
		}, nil

	case "$skip":
		n, ok := nonNegativeInt(arg)
		if !ok {
			return nil, errorf("invalid argument to $skip stage: Expected a non-negative number in: $skip: %s", arg.Raw)
		}
		return func(docs [][]byte) ([][]byte, error) {
			if n >= len(docs) {
				return nil, nil
			}
			return docs[n:], nil
		}, nil

	case "$limit":
		n, ok := nonNegativeInt(arg)
		if !ok || n == 0 {
			return nil, errorf("invalid argument to $limit stage: Expected a positive number in: $limit: %s", arg.Raw)
		}
		return func(docs [][]byte) ([][]byte, error) {
			if n < len(docs) {
				return docs[:n], nil
			}
			return docs, nil
		}, nil

	case "$project":
		if !arg.IsObject() || len(pairs(arg)) == 0 {
			return nil, errorf("$project requires at least one output field")
		}
		proj, err := CompileProjection([]byte(arg.Raw))
		if err != nil {
			return nil, err
		}
		return func(docs [][]byte) ([][]byte, error) {
			out := make([][]byte, 0, len(docs))
			for _, d := range docs {
				pd, err := proj.Apply(d)
				if err != nil {
					return nil, err
				}
				out = append(out, pd)
			}
			return out, nil
		}, nil

	case "$count":
		if arg.Type != gjson.String || arg.Str == "" || strings.HasPrefix(arg.Str, "$") || strings.Contains(arg.Str, ".") {
			return nil, errorf("the count field must be a non-empty string, not start with '$' and not contain '.'")
		}
		key, _ := writePath([]string{arg.Str})
		return func(docs [][]byte) ([][]byte, error) {
			if len(docs) == 0 {
				return nil, nil
			}
			d, err := sjson.SetBytes([]byte("{}"), key, len(docs))
			if err != nil {
				return nil, errorf("$count failed: %v", err)
			}
			return [][]byte{d}, nil
		}, nil

	case "$unwind":
		return compileUnwind(arg)

	case "$group":
		return compileGroup(arg)
	}
	return nil, errorf("Unrecognized pipeline stage name: '%s'", name)
}

func nonNegativeInt(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number || v.Num < 0 || v.Num != float64(int(v.Num)) {
		return 0, false
	}
	return int(v.Num), true
}

func fieldRef(v gjson.Result) ([]string, bool) {
	if v.Type != gjson.String || !strings.HasPrefix(v.Str, "$") || len(v.Str) < 2 {
		return nil, false
	}
	return splitPath(v.Str[1:]), true
}

func compileUnwind(arg gjson.Result) (stage, error) {
	pathArg, preserve := arg, false
	if arg.IsObject() {
		pathArg, _ = field(arg, "path")
		if p, ok := field(arg, "preserveNullAndEmptyArrays"); ok {
			preserve = p.Type == gjson.True
		}
	}
	parts, ok := fieldRef(pathArg)
	if !ok {
		return nil, errorf("path option to $unwind stage should be prefixed with a '$': %s", pathArg.Raw)
	}
	path, err := writePath(parts)
	if err != nil {
		return nil, err
	}

	return func(docs [][]byte) ([][]byte, error) {
		var out [][]byte
		for _, d := range docs {
			v := gjson.GetBytes(d, path)
			switch {
			case v.IsArray() && len(v.Array()) > 0:
				for _, el := range v.Array() {
					nd, err := setRaw(append([]byte(nil), d...), path, el.Raw)
					if err != nil {
						return nil, err
					}
					out = append(out, nd)
				}
			case v.IsArray() || !v.Exists() || v.Type == gjson.Null:
				if preserve {
					out = append(out, d)
				}
			default:
				out = append(out, d)
			}
		}
		return out, nil
	}, nil
}

type accumulator struct {
	name  string
	op    string
	ref   []string
	value gjson.Result
}

func (a accumulator) eval(doc gjson.Result) (gjson.Result, bool) {
	if a.ref == nil {
		return a.value, true
	}
	vals := lookup(doc, a.ref)
	if len(vals) == 0 {
		return gjson.Result{}, false
	}
	return vals[0], true
}

type groupState struct {
	id     string
	sums   map[string]float64
	counts map[string]int
	vals   map[string]gjson.Result
	lists  map[string][]gjson.Result
}

func compileGroup(arg gjson.Result) (stage, error) {
	if !arg.IsObject() {
		return nil, errorf("a group's fields must be specified in an object")
	}
	idSpec, ok := field(arg, "_id")
	if !ok {
		return nil, errorf("a group specification must include an _id")
	}
	idAcc := accumulator{value: idSpec}
	if ref, ok := fieldRef(idSpec); ok {
		idAcc = accumulator{ref: ref}
	}

	var accs []accumulator
	var err error
	arg.ForEach(func(k, spec gjson.Result) bool {
		if k.Str == "_id" {
			return true
		}
		if !spec.IsObject() || len(pairs(spec)) != 1 {
			err = errorf("The field '%s' must be an accumulator object", k.Str)
			return false
		}
		kv := pairs(spec)[0]
		switch kv[0].Str {
		case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$addToSet":
		default:
			err = errorf("unknown group operator '%s'", kv[0].Str)
			return false
		}
		acc := accumulator{name: k.Str, op: kv[0].Str, value: kv[1]}
		if ref, ok := fieldRef(kv[1]); ok {
			acc.ref = ref
		}
		accs = append(accs, acc)
		return true
	})
	if err != nil {
		return nil, err
	}

	return func(docs [][]byte) ([][]byte, error) {
		var order []string
		groups := make(map[string]*groupState)

		for _, d := range docs {
			doc := gjson.ParseBytes(d)
			idVal, ok := idAcc.eval(doc)
			idRaw := "null"
			if ok && idVal.Raw != "" {
				idRaw = string(compact([]byte(idVal.Raw)))
			}
			g, seen := groups[idRaw]
			if !seen {
				g = &groupState{
					id:     idRaw,
					sums:   make(map[string]float64),
					counts: make(map[string]int),
					vals:   make(map[string]gjson.Result),
					lists:  make(map[string][]gjson.Result),
				}
				groups[idRaw] = g
				order = append(order, idRaw)
			}
			for _, a := range accs {
				accumulate(g, a, doc)
			}
		}

		out := make([][]byte, 0, len(order))
		for _, key := range order {
			g := groups[key]
			d, err := setRaw([]byte("{}"), "_id", g.id)
			if err != nil {
				return nil, err
			}
			for _, a := range accs {
				path, err := writePath([]string{a.name})
				if err != nil {
					return nil, err
				}
				if d, err = setRaw(d, path, g.result(a)); err != nil {
					return nil, err
				}
			}
			out = append(out, d)
		}
		return out, nil
	}, nil
}

func accumulate(g *groupState, a accumulator, doc gjson.Result) {
	v, ok := a.eval(doc)
	switch a.op {
	case "$sum", "$avg":
		if ok && v.Type == gjson.Number {
			g.sums[a.name] += v.Num
			g.counts[a.name]++
		}
	case "$min", "$max":
		if !ok || v.Type == gjson.Null {
			return
		}
		cur, has := g.vals[a.name]
		c := Compare(v, cur)
		if !has || (a.op == "$min" && c < 0) || (a.op == "$max" && c > 0) {
			g.vals[a.name] = v
		}
	case "$first":
		if _, has := g.vals[a.name]; !has {
			if !ok {
				v = gjson.Parse("null")
			}
			g.vals[a.name] = v
		}
	case "$last":
		if !ok {
			v = gjson.Parse("null")
		}
		g.vals[a.name] = v
	case "$push":
		if ok {
			g.lists[a.name] = append(g.lists[a.name], v)
		}
	case "$addToSet":
		if ok && !containsValue(g.lists[a.name], v) {
			g.lists[a.name] = append(g.lists[a.name], v)
		}
	}
}

func (g *groupState) result(a accumulator) string {
	switch a.op {
	case "$sum":
		return numberRaw(g.sums[a.name])
	case "$avg":
		if g.counts[a.name] == 0 {
			return "null"
		}
		return numberRaw(g.sums[a.name] / float64(g.counts[a.name]))
	case "$push", "$addToSet":
		raws := make([]string, 0, len(g.lists[a.name]))
		for _, v := range g.lists[a.name] {
			raws = append(raws, v.Raw)
		}
		return "[" + strings.Join(raws, ",") + "]"
	}
	if v, ok := g.vals[a.name]; ok && v.Raw != "" {
		return v.Raw
	}
	return "null"
}
