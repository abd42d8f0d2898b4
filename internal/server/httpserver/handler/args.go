// Package handler provides HTTP request handlers for Sandstore.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/yndnr/sandstore-go/internal/core/domain"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 16 << 20

// args are the JSON arguments of a request.
type args struct {
	v gjson.Result
}

// readArgs collects the request arguments as one JSON value.
//
// GET requests carry them in the query string, either as a raw JSON value
// (?{"query":{...}}) or as one JSON value per parameter (?query={...}&limit=4).
// Other methods carry them in the body and fall back to the query string
// when the body is empty.
func readArgs(w http.ResponseWriter, r *http.Request) (args, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return args{}, domain.ErrInvalidArgument.WithDetails("request body too large")
			}
			return args{}, domain.ErrBadRequest.WithCause(err)
		}
		if body = bytes.TrimSpace(body); len(body) > 0 {
			if !gjson.ValidBytes(body) {
				return args{}, domain.ErrInvalidArgument.WithDetails("request body is not valid JSON")
			}
			return args{v: gjson.ParseBytes(body)}, nil
		}
	}

	raw, err := queryArgs(r.URL.RawQuery)
	if err != nil {
		return args{}, err
	}
	return args{v: gjson.ParseBytes(raw)}, nil
}

// queryArgs converts a query string into one JSON value.
func queryArgs(rawQuery string) ([]byte, error) {
	if rawQuery == "" {
		return []byte("{}"), nil
	}

	if s, err := url.PathUnescape(rawQuery); err == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			if !gjson.Valid(s) {
				return nil, domain.ErrInvalidArgument.WithDetails("query string is not valid JSON")
			}
			return []byte(s), nil
		}
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("malformed query string")
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte("{}")
	for _, k := range keys {
		v := values.Get(k)
		path := escapePath(k)
		// Values that are not JSON are taken as strings
		if gjson.Valid(v) {
			out, err = sjson.SetRawBytes(out, path, []byte(v))
		} else {
			out, err = sjson.SetBytes(out, path, v)
		}
		if err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails("malformed parameter " + k)
		}
	}
	return out, nil
}

// escapePath escapes the path syntax characters of a parameter name.
func escapePath(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch c {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// whole returns the complete argument value.
func (a args) whole() json.RawMessage {
	if !a.v.Exists() {
		return nil
	}
	return json.RawMessage(a.v.Raw)
}

// raw returns the named argument as JSON. Absent and null arguments are nil.
func (a args) raw(name string) json.RawMessage {
	if !a.v.IsObject() {
		return nil
	}
	f := a.v.Get(escapePath(name))
	if !f.Exists() || f.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(f.Raw)
}

// has reports whether the named argument is present.
func (a args) has(name string) bool {
	return a.v.IsObject() && a.v.Get(escapePath(name)).Exists()
}

// int returns the named argument as an integer. Absent and null arguments are
// zero.
func (a args) int(name string) (int, error) {
	raw := a.raw(name)
	if raw == nil {
		return 0, nil
	}
	f := gjson.ParseBytes(raw)
	if f.Type == gjson.String {
		f = gjson.Parse(f.Str)
	}
	if f.Type != gjson.Number || f.Num != float64(int(f.Num)) {
		return 0, domain.ErrInvalidArgument.WithDetails(name + " must be an integer")
	}
	return int(f.Num), nil
}

// bool returns the named argument as a boolean.
func (a args) bool(name string) bool {
	raw := a.raw(name)
	if raw == nil {
		return false
	}
	return gjson.ParseBytes(raw).Bool()
}

// str returns the named argument as a string.
func (a args) str(name string) string {
	raw := a.raw(name)
	if raw == nil {
		return ""
	}
	return gjson.ParseBytes(raw).String()
}
