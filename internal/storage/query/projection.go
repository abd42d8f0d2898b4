package query

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Projection selects the fields returned for each document.
type Projection struct {
	paths   [][]string
	include bool
	idMode  int // 0: default (kept), 1: kept, -1: dropped
}

// CompileProjection compiles {field: 1|0, ...}. An empty input keeps every
// field.
func CompileProjection(raw []byte) (*Projection, error) {
	p := &Projection{include: true}
	v, ok := parse(raw)
	if !ok {
		if len(strings.TrimSpace(string(raw))) == 0 {
			return p, nil
		}
		return nil, errorf("projection is not valid JSON")
	}
	if !v.IsObject() {
		return nil, errorf("projection must be an object")
	}

	mode := 0
	var err error
	v.ForEach(func(k, val gjson.Result) bool {
		if val.Type != gjson.Number && val.Type != gjson.True && val.Type != gjson.False {
			err = errorf("unsupported projection option: %s", k.Str)
			return false
		}
		on := isTruthy(val)
		if k.Str == "_id" {
			if on {
				p.idMode = 1
			} else {
				p.idMode = -1
			}
			return true
		}

		m := -1
		if on {
			m = 1
		}
		if mode != 0 && mode != m {
			err = errorf("Projection cannot have a mix of inclusion and exclusion.")
			return false
		}
		mode = m
		p.paths = append(p.paths, splitPath(k.Str))
		return true
	})
	if err != nil {
		return nil, err
	}

	for _, parts := range p.paths {
		if _, err := writePath(parts); err != nil {
			return nil, err
		}
	}
	switch {
	case mode == 1:
		p.include = true
	case mode == -1:
		p.include = false
	case p.idMode == 1:
		// {_id: 1} alone keeps only the _id.
		p.include = true
	default:
		p.include = false
	}
	return p, nil
}

// IsEmpty reports whether the projection keeps documents unchanged.
func (p *Projection) IsEmpty() bool {
	return len(p.paths) == 0 && p.idMode != -1 && !(p.include && p.idMode == 1)
}

// Apply returns the projected copy of doc.
func (p *Projection) Apply(doc []byte) ([]byte, error) {
	if p.IsEmpty() {
		return doc, nil
	}
	src := gjson.ParseBytes(doc)

	if !p.include {
		out := append([]byte(nil), doc...)
		var err error
		for _, parts := range p.paths {
			path, _ := writePath(parts)
			if out, err = sjson.DeleteBytes(out, path); err != nil {
				return nil, errorf("projection failed: %v", err)
			}
		}
		if p.idMode == -1 {
			if out, err = sjson.DeleteBytes(out, "_id"); err != nil {
				return nil, errorf("projection failed: %v", err)
			}
		}
		return out, nil
	}

	out := []byte("{}")
	var err error
	if p.idMode != -1 {
		if id, ok := field(src, "_id"); ok {
			if out, err = sjson.SetRawBytes(out, "_id", []byte(id.Raw)); err != nil {
				return nil, errorf("projection failed: %v", err)
			}
		}
	}
	for _, parts := range p.paths {
		depth, raw, ok := pick(src, parts, 0)
		if !ok {
			continue
		}
		path, _ := writePath(parts[:depth])
		if out, err = sjson.SetRawBytes(out, path, []byte(raw)); err != nil {
			return nil, errorf("projection failed: %v", err)
		}
	}
	return out, nil
}

// pick walks parts through objects. When it meets an array it projects every
// object element and reports the depth of that array, so the caller writes
// the projected array in place.
func pick(v gjson.Result, parts []string, depth int) (int, string, bool) {
	if depth == len(parts) {
		return depth, v.Raw, true
	}
	switch {
	case v.IsObject():
		child, ok := field(v, parts[depth])
		if !ok {
			return 0, "", false
		}
		return pick(child, parts, depth+1)
	case v.IsArray() && depth > 0:
		var elems []string
		for _, el := range v.Array() {
			if !el.IsObject() {
				continue
			}
			sub := &Projection{include: true, idMode: -1, paths: [][]string{parts[depth:]}}
			b, err := sub.Apply([]byte(el.Raw))
			if err != nil {
				return 0, "", false
			}
			elems = append(elems, string(b))
		}
		return depth, "[" + strings.Join(elems, ",") + "]", true
	}
	return 0, "", false
}
