package query

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Normalize validates a client document and returns its compact encoding.
// The stored size of a document is the length of this encoding.
func Normalize(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, errorf("document is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, errorf("document must be an object")
	}

	var bad string
	doc.ForEach(func(k, _ gjson.Result) bool {
		if strings.HasPrefix(k.Str, "$") {
			bad = k.Str
			return false
		}
		return true
	})
	if bad != "" {
		return nil, errorf("Document can't have $ prefixed field names: %s", bad)
	}

	return compact(raw), nil
}

// SplitDocuments accepts one document or an array of documents.
func SplitDocuments(raw []byte) ([][]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, errorf("document is not valid JSON")
	}
	v := gjson.ParseBytes(raw)
	if !v.IsArray() {
		doc, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		return [][]byte{doc}, nil
	}

	elems := v.Array()
	if len(elems) == 0 {
		return nil, errorf("no documents to insert")
	}
	docs := make([][]byte, 0, len(elems))
	for _, el := range elems {
		doc, err := Normalize([]byte(el.Raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ID returns the _id member of doc.
func ID(doc []byte) gjson.Result {
	id, _ := field(gjson.ParseBytes(doc), "_id")
	return id
}

// IDKey returns a map key that is equal for equal _id values.
func IDKey(id gjson.Result) string {
	return string(compact([]byte(id.Raw)))
}

// WithID returns doc with _id set to idRaw as its first member, unless doc
// already has an _id.
func WithID(doc []byte, idRaw string) []byte {
	if ID(doc).Exists() {
		return doc
	}
	body := bytes.TrimSpace(doc)
	inner := bytes.TrimSpace(body[1 : len(body)-1])

	out := make([]byte, 0, len(body)+len(idRaw)+8)
	out = append(out, `{"_id":`...)
	out = append(out, idRaw...)
	if len(inner) > 0 {
		out = append(out, ',')
		out = append(out, inner...)
	}
	return append(out, '}')
}

// StringID renders s as a JSON string for use as an _id.
func StringID(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func compact(raw []byte) []byte {
	return []byte(gjson.GetBytes(raw, "@ugly").Raw)
}

func parse(raw []byte) (gjson.Result, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(compact(raw)), true
}
