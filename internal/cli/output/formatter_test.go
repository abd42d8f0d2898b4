package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("json should give a JSONFormatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("yaml should give a YAMLFormatter")
	}
	f, ok := NewFormatter(FormatTable, true).(*TableFormatter)
	if !ok || !f.Wide {
		t.Error("table should give a wide TableFormatter")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	docs := Documents{json.RawMessage(`{"_id":"a","n":1}`)}
	if err := (&JSONFormatter{}).Format(&buf, docs); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 || decoded[0]["_id"] != "a" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestYAMLFormatter_Format(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{
			name: "documents keep field order",
			data: Documents{json.RawMessage(`{"_id":"a","name":"ada","tags":["x","y"]}`)},
			want: "- _id: a\n  name: ada\n  tags:\n    - x\n    - y\n",
		},
		{
			name: "struct uses json tags",
			data: struct {
				ResID string `json:"res_id"`
				IsNew bool   `json:"is_new"`
			}{"01J", true},
			want: "res_id: 01J\nis_new: true\n",
		},
		{
			name: "ambiguous strings stay quoted",
			data: map[string]string{"v": "true"},
			want: "v: \"true\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&YAMLFormatter{}).Format(&buf, tt.data); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("yaml =\n%s\nwant\n%s", buf.String(), tt.want)
			}
		})
	}
}

func TestYAMLFormatter_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLFormatter{}).Format(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "null" {
		t.Errorf("yaml = %q", buf.String())
	}
}
