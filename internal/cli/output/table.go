package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tidwall/gjson"
)

// maxCell bounds cell width outside wide mode.
const maxCell = 40

// Documents is a list of query results.
type Documents []json.RawMessage

// TableFormatter formats data as an ASCII table.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format formats data as a table.
// Supports: *Table, Documents, []string, map[string]any, structs and slices
// of structs. Anything else is written as JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}

	var table *Table
	switch v := data.(type) {
	case *Table:
		table = v
	case Documents:
		table = documentsTable(v, f.Wide)
	case []string:
		table = &Table{Headers: []string{"NAME"}}
		for _, s := range v {
			table.AddRow(s)
		}
	case map[string]any:
		table = mapTable(v, f.Wide)
	default:
		var ok bool
		if table, ok = reflectTable(reflect.ValueOf(data), f.Wide); !ok {
			encoder := json.NewEncoder(w)
			encoder.SetIndent("", "  ")
			return encoder.Encode(data)
		}
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

// documentsTable lays documents out with one column per top-level field.
// Columns follow first appearance, with _id first when present.
func documentsTable(docs Documents, wide bool) *Table {
	seen := map[string]bool{"_id": true}
	var columns []string
	hasID := false
	for _, doc := range docs {
		gjson.ParseBytes(doc).ForEach(func(key, _ gjson.Result) bool {
			if key.String() == "_id" {
				hasID = true
			} else if !seen[key.String()] {
				seen[key.String()] = true
				columns = append(columns, key.String())
			}
			return true
		})
	}
	if hasID {
		columns = append([]string{"_id"}, columns...)
	}

	table := &Table{}
	for _, c := range columns {
		table.Headers = append(table.Headers, strings.ToUpper(c))
	}
	for _, doc := range docs {
		parsed := gjson.ParseBytes(doc)
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = cell(parsed.Get(gjson.Escape(c)), wide)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// cell renders one JSON value.
func cell(v gjson.Result, wide bool) string {
	var s string
	switch v.Type {
	case gjson.Null:
		if !v.Exists() {
			return "-"
		}
		s = "null"
	case gjson.String:
		s = v.String()
	case gjson.JSON:
		s = gjson.Get(v.Raw, "@ugly").Raw
	default:
		s = v.Raw
	}
	return truncate(s, wide)
}

func truncate(s string, wide bool) string {
	if wide || len([]rune(s)) <= maxCell {
		return s
	}
	r := []rune(s)
	return string(r[:maxCell-3]) + "..."
}

// mapTable converts a map to a key-value table sorted by key.
func mapTable(m map[string]any, wide bool) *Table {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := &Table{Headers: []string{"KEY", "VALUE"}}
	for _, k := range keys {
		table.AddRow(k, truncate(formatValue(reflect.ValueOf(m[k])), wide))
	}
	return table
}

// reflectTable converts a struct, or a slice of structs, into a table.
// Column names come from json tags; fields tagged table:"wide" only show in
// wide mode.
func reflectTable(v reflect.Value, wide bool) (*Table, bool) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return &Table{}, true
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		table := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, f := range columnsOf(v.Type(), true) {
			table.AddRow(f.name, formatValue(v.Field(f.index)))
		}
		return table, true
	case reflect.Slice, reflect.Array:
		elemType := v.Type().Elem()
		for elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if elemType.Kind() != reflect.Struct {
			return nil, false
		}
		fields := columnsOf(elemType, wide)
		table := &Table{}
		for _, f := range fields {
			table.Headers = append(table.Headers, strings.ToUpper(f.name))
		}
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			for elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			if !elem.IsValid() {
				continue
			}
			row := make([]string, len(fields))
			for j, f := range fields {
				row[j] = formatValue(elem.Field(f.index))
			}
			table.Rows = append(table.Rows, row)
		}
		return table, true
	default:
		return nil, false
	}
}

type column struct {
	name  string
	index int
}

func columnsOf(t reflect.Type, wide bool) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("table")
		if tag == "-" || (tag == "wide" && !wide) {
			continue
		}
		name := toSnakeCase(field.Name)
		if jsonTag, _, _ := strings.Cut(field.Tag.Get("json"), ","); jsonTag != "" && jsonTag != "-" {
			name = jsonTag
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

// formatValue formats a reflect.Value for display.
func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}

	if t, ok := v.Interface().(time.Time); ok {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	}

	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return "-"
		}
		return v.String()
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", v.Float())
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.Len() == 0 {
			return "-"
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// toSnakeCase converts CamelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		result.WriteRune(r)
	}
	return result.String()
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table with options.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// SetHeaders sets the table headers.
func (t *Table) SetHeaders(headers ...string) {
	t.Headers = headers
}
