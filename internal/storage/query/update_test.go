package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_Apply(t *testing.T) {
	doc := []byte(`{"_id":"x","n":1,"s":"a","arr":[1,2],"sub":{"k":"v"}}`)

	tests := []struct {
		name   string
		update string
		want   string
	}{
		{"$set", `{"$set":{"s":"b"}}`, `{"_id":"x","n":1,"s":"b","arr":[1,2],"sub":{"k":"v"}}`},
		{"$set nested new", `{"$set":{"sub.j":1}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2],"sub":{"k":"v","j":1}}`},
		{"$unset", `{"$unset":{"s":""}}`, `{"_id":"x","n":1,"arr":[1,2],"sub":{"k":"v"}}`},
		{"$inc", `{"$inc":{"n":2}}`, `{"_id":"x","n":3,"s":"a","arr":[1,2],"sub":{"k":"v"}}`},
		{"$inc missing", `{"$inc":{"m":1.5}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2],"sub":{"k":"v"},"m":1.5}`},
		{"$min keeps", `{"$min":{"n":5}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2],"sub":{"k":"v"}}`},
		{"$max raises", `{"$max":{"n":5}}`, `{"_id":"x","n":5,"s":"a","arr":[1,2],"sub":{"k":"v"}}`},
		{"$push", `{"$push":{"arr":3}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2,3],"sub":{"k":"v"}}`},
		{"$push $each", `{"$push":{"arr":{"$each":[3,4]}}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2,3,4],"sub":{"k":"v"}}`},
		{"$addToSet", `{"$addToSet":{"arr":{"$each":[2,5]}}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2,5],"sub":{"k":"v"}}`},
		{"$pull", `{"$pull":{"arr":{"$gte":2}}}`, `{"_id":"x","n":1,"s":"a","arr":[1],"sub":{"k":"v"}}`},
		{"$setOnInsert ignored", `{"$setOnInsert":{"z":1}}`, `{"_id":"x","n":1,"s":"a","arr":[1,2],"sub":{"k":"v"}}`},
		{"replacement keeps _id", `{"only":true}`, `{"_id":"x","only":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := CompileUpdate([]byte(tt.update))
			require.NoError(t, err)
			got, err := u.Apply(doc)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestUpdate_ApplyDoesNotMutateInput(t *testing.T) {
	doc := []byte(`{"_id":"x","n":1}`)
	orig := string(doc)

	u, err := CompileUpdate([]byte(`{"$set":{"n":2}}`))
	require.NoError(t, err)
	_, err = u.Apply(doc)
	require.NoError(t, err)

	assert.Equal(t, orig, string(doc))
}

func TestCompileUpdate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		update string
		msg    string
	}{
		{"unknown modifier", `{"$bogus":{"a":1}}`, "Unknown modifier: $bogus"},
		{"mixed", `{"$set":{"a":1},"b":2}`, "the update operation document must contain only update operator expressions"},
		{"immutable _id", `{"$set":{"_id":2}}`, "Performing an update on the path '_id' would modify the immutable field '_id'"},
		{"non-numeric inc", `{"$inc":{"a":"x"}}`, `Cannot increment with non-numeric argument: {a: "x"}`},
		{"not object", `[1]`, "update must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileUpdate([]byte(tt.update))
			require.Error(t, err)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestUpdate_ApplyErrors(t *testing.T) {
	doc := []byte(`{"_id":"x","s":"a"}`)

	u, err := CompileUpdate([]byte(`{"$inc":{"s":1}}`))
	require.NoError(t, err)
	_, err = u.Apply(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot apply $inc to a value of non-numeric type")

	u, err = CompileUpdate([]byte(`{"$push":{"s":1}}`))
	require.NoError(t, err)
	_, err = u.Apply(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an array")

	u, err = CompileUpdate([]byte(`{"_id":"y","a":1}`))
	require.NoError(t, err)
	_, err = u.Apply(doc)
	require.Error(t, err)
	assert.Equal(t, "the _id field cannot be changed", err.Error())
}

func TestUpsertDocument(t *testing.T) {
	u, err := CompileUpdate([]byte(`{"$set":{"b":2},"$setOnInsert":{"c":3}}`))
	require.NoError(t, err)

	got, err := UpsertDocument([]byte(`{"a":1,"n.m":{"$eq":"x"},"r":{"$gt":5}}`), u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"n":{"m":"x"},"b":2,"c":3}`, string(got))

	rep, err := CompileUpdate([]byte(`{"z":true}`))
	require.NoError(t, err)
	got, err = UpsertDocument([]byte(`{"_id":7}`), rep)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":7,"z":true}`, string(got))
}
