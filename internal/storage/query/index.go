package query

import (
	"strings"

	"github.com/tidwall/gjson"
)

// IndexDef is a validated index definition.
type IndexDef struct {
	Name   string
	Keys   []byte
	Fields []string
	Unique bool
	Sparse bool
}

// IDIndex returns the implicit unique index on _id.
func IDIndex() IndexDef {
	return IndexDef{Name: "_id_", Keys: []byte(`{"_id":1}`), Fields: []string{"_id"}, Unique: true}
}

// CompileIndex validates an index key pattern. An empty name is derived
// from the pattern.
func CompileIndex(keys []byte, name string, unique, sparse bool) (IndexDef, error) {
	v, ok := parse(keys)
	if !ok || !v.IsObject() {
		return IndexDef{}, errorf("index key pattern must be an object")
	}

	def := IndexDef{Keys: []byte(v.Raw), Unique: unique, Sparse: sparse}
	var parts []string
	var err error
	v.ForEach(func(k, val gjson.Result) bool {
		if k.Str == "" {
			err = errorf("index keys cannot be an empty field")
			return false
		}
		switch {
		case val.Type == gjson.Number && val.Num != 0:
		case val.Type == gjson.String && val.Str != "":
		default:
			err = errorf("bad index key pattern %s: values must be non-zero numbers or strings", v.Raw)
			return false
		}
		def.Fields = append(def.Fields, k.Str)
		dir := val.Raw
		if val.Type == gjson.String {
			dir = val.Str
		}
		parts = append(parts, k.Str+"_"+dir)
		return true
	})
	if err != nil {
		return IndexDef{}, err
	}
	if len(def.Fields) == 0 {
		return IndexDef{}, errorf("index key pattern must not be empty")
	}

	def.Name = name
	if def.Name == "" {
		def.Name = strings.Join(parts, "_")
	}
	return def, nil
}

// SameKeys reports whether two definitions index the same pattern.
func (d IndexDef) SameKeys(o IndexDef) bool {
	return string(compact(d.Keys)) == string(compact(o.Keys))
}

// CheckUnique reports the first duplicate key of a unique index in docs.
func CheckUnique(coll string, docs [][]byte, defs []IndexDef) error {
	for _, def := range defs {
		if !def.Unique {
			continue
		}
		seen := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			key, display, ok := def.key(d)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				return errorf("E11000 duplicate key error collection: %s index: %s dup key: { %s }", coll, def.Name, display)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// key returns the index key of doc. ok is false when a sparse index skips
// the document.
func (d IndexDef) key(doc []byte) (key, display string, ok bool) {
	root := gjson.ParseBytes(doc)
	keys := make([]string, len(d.Fields))
	shown := make([]string, len(d.Fields))
	present := false
	for i, f := range d.Fields {
		vals := lookup(root, splitPath(f))
		raw := "null"
		if len(vals) > 0 {
			raw = string(compact([]byte(vals[0].Raw)))
			present = true
		}
		keys[i] = raw
		shown[i] = ": " + raw
	}
	if d.Sparse && !present {
		return "", "", false
	}
	return strings.Join(keys, "\x00"), strings.Join(shown, ", "), true
}
