package command

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/yndnr/sandstore-go/internal/cli/output"
)

// present turns the raw answer of a collection method into a printable
// value: documents for find, aggregate and getIndexes, the number for
// count, nil for methods without a result.
func present(method string, raw json.RawMessage) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s: malformed response", method)
	}
	v := gjson.ParseBytes(raw)

	switch method {
	case "find", "aggregate":
		return documents(v.Get("result")), nil
	case "count":
		return v.Get("count").String(), nil
	case "getIndexes":
		return documents(v), nil
	default:
		return v.Value(), nil
	}
}

func documents(v gjson.Result) output.Documents {
	docs := output.Documents{}
	v.ForEach(func(_, doc gjson.Result) bool {
		docs = append(docs, json.RawMessage(doc.Raw))
		return true
	})
	return docs
}
