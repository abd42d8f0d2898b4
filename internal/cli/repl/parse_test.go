package repl

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		coll     string
		method   string
		wantArgs string
	}{
		{"find no args", "db.users.find()", "users", "find", `{}`},
		{"find query", `db.users.find({"age": {"$gt": 30}})`, "users", "find", `{"query":{"age":{"$gt":30}}}`},
		{"find projection", `db.users.find({}, {"name": 1})`, "users", "find", `{"query":{},"projection":{"name":1}}`},
		{"find chained", `db.users.find({"a":1}).sort({"name":-1}).skip(2).limit(5);`, "users", "find", `{"query":{"a":1},"sort":{"name":-1},"skip":2,"limit":5}`},
		{"dotted collection", `db.app.logs.count({"level":"warn"})`, "app.logs", "count", `{"query":{"level":"warn"}}`},
		{"insert many", `db.users.insert([{"n":1},{"n":2}])`, "users", "insert", `{"document":[{"n":1},{"n":2}]}`},
		{"update options", `db.users.update({"n":1}, {"$set":{"n":2}}, {"upsert": true, "multi": false})`, "users", "update", `{"query":{"n":1},"update":{"$set":{"n":2}},"upsert":true,"multi":false}`},
		{"remove justOne bool", `db.users.remove({"n":1}, true)`, "users", "remove", `{"constraint":{"n":1},"just_one":true}`},
		{"remove justOne object", `db.users.remove({"n":1}, {"justOne": true})`, "users", "remove", `{"constraint":{"n":1},"just_one":true}`},
		{"aggregate array", `db.sales.aggregate([{"$group":{"_id":"$item"}}])`, "sales", "aggregate", `{"pipeline":[{"$group":{"_id":"$item"}}]}`},
		{"aggregate stages", `db.sales.aggregate({"$match":{}}, {"$limit":1})`, "sales", "aggregate", `{"pipeline":[{"$match":{}},{"$limit":1}]}`},
		{"ensure index", `db.users.ensureIndex({"name":1}, {"unique":true})`, "users", "ensureIndex", `{"keys":{"name":1},"options":{"unique":true}}`},
		{"drop index", `db.users.dropIndex("name_1")`, "users", "dropIndex", `{"name":"name_1"}`},
		{"string with parens", `db.notes.insert({"text":"a) b ( \"c)\""})`, "notes", "insert", `{"document":{"text":"a) b ( \"c)\""}}`},
		{"database names", "db.getCollectionNames()", "", "getCollectionNames", `{}`},
		{"database drop", "  db.dropDatabase() ; ", "", "dropDatabase", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.line, err)
			}
			if call.Collection != tt.coll || call.Method != tt.method {
				t.Errorf("call = %q.%q, want %q.%q", call.Collection, call.Method, tt.coll, tt.method)
			}
			got := gjson.GetBytes(call.Args, `@ugly`).Raw
			want := gjson.Get(tt.wantArgs, `@ugly`).Raw
			if got != want {
				t.Errorf("args = %s, want %s", got, want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not db", `users.find()`},
		{"no call", `db.users`},
		{"unknown method", `db.users.mapReduce()`},
		{"unknown database method", `db.shutdownServer()`},
		{"database method with args", `db.dropDatabase({})`},
		{"too many args", `db.users.count({}, {}, {})`},
		{"bad json", `db.users.find({name: "x"})`},
		{"unbalanced", `db.users.find({"a":1}`},
		{"mismatched bracket", `db.users.find({"a":1]`},
		{"modifier not allowed", `db.users.insert({}).limit(1)`},
		{"modifier arity", `db.users.find().limit()`},
		{"trailing junk", `db.users.find() x`},
		{"update options not object", `db.users.update({}, {}, true)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if call, err := Parse(tt.line); err == nil {
				t.Errorf("Parse(%q) = %+v, want error", tt.line, call)
			}
		})
	}
}
