package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	doc := []byte(`{"_id":1,"name":"ada","age":36,"tags":["math","poet"],"addr":{"city":"London","zip":null},"pets":[{"kind":"cat","age":3},{"kind":"dog","age":9}]}`)

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"empty", ``, true},
		{"empty object", `{}`, true},
		{"equality", `{"name":"ada"}`, true},
		{"equality miss", `{"name":"bob"}`, false},
		{"nested path", `{"addr.city":"London"}`, true},
		{"array contains", `{"tags":"poet"}`, true},
		{"array exact", `{"tags":["math","poet"]}`, true},
		{"array order matters", `{"tags":["poet","math"]}`, false},
		{"array of objects fan out", `{"pets.kind":"dog"}`, true},
		{"array index", `{"pets.0.kind":"cat"}`, true},
		{"null matches null", `{"addr.zip":null}`, true},
		{"null matches missing", `{"nickname":null}`, true},
		{"$gt", `{"age":{"$gt":30}}`, true},
		{"$gt and $lt", `{"age":{"$gt":30,"$lt":36}}`, false},
		{"$gte boundary", `{"age":{"$gte":36}}`, true},
		{"type bracketing", `{"age":{"$gt":"a"}}`, false},
		{"$ne", `{"name":{"$ne":"bob"}}`, true},
		{"$in", `{"tags":{"$in":["x","math"]}}`, true},
		{"$nin", `{"name":{"$nin":["ada"]}}`, false},
		{"$exists true", `{"addr":{"$exists":true}}`, true},
		{"$exists false", `{"nickname":{"$exists":false}}`, true},
		{"$exists on null", `{"addr.zip":{"$exists":true}}`, true},
		{"$size", `{"tags":{"$size":2}}`, true},
		{"$all", `{"tags":{"$all":["poet","math"]}}`, true},
		{"$elemMatch", `{"pets":{"$elemMatch":{"kind":"dog","age":{"$gt":5}}}}`, true},
		{"$elemMatch miss", `{"pets":{"$elemMatch":{"kind":"cat","age":{"$gt":5}}}}`, false},
		{"$not", `{"age":{"$not":{"$lt":18}}}`, true},
		{"$regex", `{"name":{"$regex":"^A","$options":"i"}}`, true},
		{"$and", `{"$and":[{"name":"ada"},{"age":36}]}`, true},
		{"$or", `{"$or":[{"name":"bob"},{"age":36}]}`, true},
		{"$nor", `{"$nor":[{"name":"bob"},{"age":1}]}`, true},
		{"object equality", `{"addr":{"city":"London","zip":null}}`, true},
		{"object key order", `{"addr":{"zip":null,"city":"London"}}`, false},
		{"number forms", `{"age":36.0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter([]byte(tt.filter))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(doc))
		})
	}
}

func TestCompileFilter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		msg    string
	}{
		{"not json", `{"a":`, "filter is not valid JSON"},
		{"not object", `[1,2]`, "filter must be an object"},
		{"unknown top level", `{"$where":"1"}`, "unknown top level operator: $where"},
		{"unknown operator", `{"a":{"$near":1}}`, "unknown operator: $near"},
		{"$in needs array", `{"a":{"$in":1}}`, "$in needs an array"},
		{"$or empty", `{"$or":[]}`, "$or must be a nonempty array"},
		{"bad regex", `{"a":{"$regex":"("}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter([]byte(tt.filter))
			require.Error(t, err)
			assert.True(t, IsError(err))
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
		})
	}
}

func TestCompare_TypeOrder(t *testing.T) {
	ordered := []string{`null`, `-1`, `2.5`, `"a"`, `"b"`, `{"a":1}`, `[1]`, `false`, `true`}
	for i := 1; i < len(ordered); i++ {
		a, _ := parse([]byte(ordered[i-1]))
		b, _ := parse([]byte(ordered[i]))
		assert.Equal(t, -1, Compare(a, b), "%s < %s", ordered[i-1], ordered[i])
		assert.Equal(t, 1, Compare(b, a), "%s > %s", ordered[i], ordered[i-1])
	}
}
