package query

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type updateOp struct {
	op    string
	parts []string
	path  string
	arg   gjson.Result
}

// Update is a compiled update document: either a replacement or a list of
// field operators.
type Update struct {
	replacement []byte
	ops         []updateOp
}

var knownModifiers = map[string]bool{
	"$set":         true,
	"$unset":       true,
	"$inc":         true,
	"$min":         true,
	"$max":         true,
	"$push":        true,
	"$addToSet":    true,
	"$pull":        true,
	"$setOnInsert": true,
}

// CompileUpdate compiles an update document.
func CompileUpdate(raw []byte) (*Update, error) {
	v, ok := parse(raw)
	if !ok {
		return nil, errorf("update is not valid JSON")
	}
	if !v.IsObject() {
		return nil, errorf("update must be an object")
	}

	var ops, plain int
	v.ForEach(func(k, _ gjson.Result) bool {
		if strings.HasPrefix(k.Str, "$") {
			ops++
		} else {
			plain++
		}
		return true
	})
	if ops > 0 && plain > 0 {
		return nil, errorf("the update operation document must contain only update operator expressions")
	}
	if ops == 0 {
		doc, err := Normalize([]byte(v.Raw))
		if err != nil {
			return nil, err
		}
		return &Update{replacement: doc}, nil
	}

	u := &Update{}
	var err error
	v.ForEach(func(k, fields gjson.Result) bool {
		if !knownModifiers[k.Str] {
			err = errorf("Unknown modifier: %s", k.Str)
			return false
		}
		if !fields.IsObject() {
			err = errorf("Modifiers operate on fields but we found type %s instead", typeName(fields))
			return false
		}
		fields.ForEach(func(f, arg gjson.Result) bool {
			parts := splitPath(f.Str)
			if parts[0] == "_id" {
				err = errorf("Performing an update on the path '_id' would modify the immutable field '_id'")
				return false
			}
			var path string
			if path, err = writePath(parts); err != nil {
				return false
			}
			err = checkArg(k.Str, f.Str, arg)
			if err != nil {
				return false
			}
			u.ops = append(u.ops, updateOp{op: k.Str, parts: parts, path: path, arg: arg})
			return true
		})
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func checkArg(op, name string, arg gjson.Result) error {
	switch op {
	case "$inc":
		if arg.Type != gjson.Number {
			return errorf("Cannot increment with non-numeric argument: {%s: %s}", name, arg.Raw)
		}
	case "$push", "$addToSet":
		if each, ok := field(arg, "$each"); ok && !each.IsArray() {
			return errorf("The argument to $each in %s must be an array", op)
		}
	case "$pull":
		if isOperatorObject(arg) {
			if _, err := compileOperators(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsReplacement reports whether the update replaces whole documents.
func (u *Update) IsReplacement() bool {
	return u.replacement != nil
}

// Apply returns the updated copy of doc.
func (u *Update) Apply(doc []byte) ([]byte, error) {
	return u.apply(doc, false)
}

func (u *Update) apply(doc []byte, inserting bool) ([]byte, error) {
	if u.IsReplacement() {
		orig := ID(doc)
		rep := ID(u.replacement)
		if orig.Exists() && rep.Exists() && !Equal(orig, rep) {
			return nil, errorf("the _id field cannot be changed")
		}
		out := append([]byte(nil), u.replacement...)
		if orig.Exists() {
			out = WithID(out, orig.Raw)
		}
		return out, nil
	}

	out := append([]byte(nil), doc...)
	var err error
	for _, op := range u.ops {
		if op.op == "$setOnInsert" && !inserting {
			continue
		}
		if out, err = op.apply(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (op updateOp) apply(doc []byte) ([]byte, error) {
	cur := gjson.GetBytes(doc, op.path)

	switch op.op {
	case "$set", "$setOnInsert":
		return setRaw(doc, op.path, op.arg.Raw)

	case "$unset":
		out, err := sjson.DeleteBytes(doc, op.path)
		if err != nil {
			return nil, errorf("cannot unset '%s': %v", strings.Join(op.parts, "."), err)
		}
		return out, nil

	case "$inc":
		if cur.Exists() && cur.Type != gjson.Number {
			return nil, errorf("Cannot apply $inc to a value of non-numeric type. {_id: %s} has the field '%s' of non-numeric type %s",
				ID(doc).Raw, strings.Join(op.parts, "."), typeName(cur))
		}
		return setRaw(doc, op.path, numberRaw(cur.Num+op.arg.Num))

	case "$min", "$max":
		if cur.Exists() {
			c := Compare(op.arg, cur)
			if (op.op == "$min" && c >= 0) || (op.op == "$max" && c <= 0) {
				return doc, nil
			}
		}
		return setRaw(doc, op.path, op.arg.Raw)

	case "$push", "$addToSet":
		if cur.Exists() && !cur.IsArray() {
			return nil, errorf("The field '%s' must be an array but is of type %s in document {_id: %s}",
				strings.Join(op.parts, "."), typeName(cur), ID(doc).Raw)
		}
		items := []gjson.Result{op.arg}
		if each, ok := field(op.arg, "$each"); ok {
			items = each.Array()
		}
		existing := cur.Array()
		elems := make([]string, 0, len(existing)+len(items))
		for _, e := range existing {
			elems = append(elems, e.Raw)
		}
		for _, it := range items {
			if op.op == "$addToSet" && containsValue(existing, it) {
				continue
			}
			existing = append(existing, it)
			elems = append(elems, it.Raw)
		}
		return setRaw(doc, op.path, "["+strings.Join(elems, ",")+"]")

	case "$pull":
		if !cur.Exists() {
			return doc, nil
		}
		if !cur.IsArray() {
			return nil, errorf("Cannot apply $pull to a non-array value")
		}
		match, err := pullMatcher(op.arg)
		if err != nil {
			return nil, err
		}
		var kept []string
		for _, e := range cur.Array() {
			if !match(e) {
				kept = append(kept, e.Raw)
			}
		}
		return setRaw(doc, op.path, "["+strings.Join(kept, ",")+"]")
	}
	return nil, errorf("Unknown modifier: %s", op.op)
}

func pullMatcher(arg gjson.Result) (func(gjson.Result) bool, error) {
	if isOperatorObject(arg) {
		preds, err := compileOperators(arg)
		if err != nil {
			return nil, err
		}
		return func(v gjson.Result) bool {
			for _, p := range preds {
				if !p([]gjson.Result{v}) {
					return false
				}
			}
			return true
		}, nil
	}
	if arg.IsObject() {
		m, err := compileObject(arg)
		if err != nil {
			return nil, err
		}
		return func(v gjson.Result) bool { return v.IsObject() && m.match(v) }, nil
	}
	return func(v gjson.Result) bool { return Equal(v, arg) }, nil
}

func containsValue(vals []gjson.Result, v gjson.Result) bool {
	for _, e := range vals {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

func setRaw(doc []byte, path, raw string) ([]byte, error) {
	out, err := sjson.SetRawBytes(doc, path, []byte(raw))
	if err != nil {
		return nil, errorf("cannot set '%s': %v", path, err)
	}
	return out, nil
}

// UpsertDocument builds the document inserted when an upsert matches
// nothing: the equality fields of query, then the update applied on top.
// The result has no _id unless query or the replacement provides one.
func UpsertDocument(query []byte, u *Update) ([]byte, error) {
	seed := []byte("{}")
	if q, ok := parse(query); ok && q.IsObject() {
		var err error
		q.ForEach(func(k, v gjson.Result) bool {
			if strings.HasPrefix(k.Str, "$") {
				return true
			}
			if isOperatorObject(v) {
				eq, ok := field(v, "$eq")
				if !ok {
					return true
				}
				v = eq
			}
			var path string
			if path, err = writePath(splitPath(k.Str)); err != nil {
				return false
			}
			seed, err = setRaw(seed, path, v.Raw)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}

	if u.IsReplacement() {
		out := append([]byte(nil), u.replacement...)
		if id := ID(seed); id.Exists() && !ID(out).Exists() {
			out = WithID(out, id.Raw)
		}
		return out, nil
	}
	return u.apply(seed, true)
}

func typeName(v gjson.Result) string {
	switch typeRank(v) {
	case rankNumber:
		return "double"
	case rankString:
		return "string"
	case rankObject:
		return "object"
	case rankArray:
		return "array"
	case rankBool:
		return "bool"
	}
	return "null"
}
