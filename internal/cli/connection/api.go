package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// Operation describes how a collection method maps onto the HTTP API.
type Operation struct {
	Method string
	// Result is true when the call answers with a JSON body.
	Result bool
}

// operations lists the collection methods served under
// /mws/{res_id}/db/{coll}/{method}.
var operations = map[string]Operation{
	"find":        {Method: http.MethodGet, Result: true},
	"count":       {Method: http.MethodGet, Result: true},
	"aggregate":   {Method: http.MethodGet, Result: true},
	"getIndexes":  {Method: http.MethodGet, Result: true},
	"insert":      {Method: http.MethodPost},
	"ensureIndex": {Method: http.MethodPost},
	"update":      {Method: http.MethodPut},
	"reIndex":     {Method: http.MethodPut},
	"remove":      {Method: http.MethodDelete},
	"drop":        {Method: http.MethodDelete},
	"dropIndex":   {Method: http.MethodDelete},
	"dropIndexes": {Method: http.MethodDelete},
}

// Operations returns the collection method names in sorted order.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupOperation returns the operation for a collection method.
func LookupOperation(name string) (Operation, bool) {
	op, ok := operations[name]
	return op, ok
}

// ResolveResult is the answer to a session resolve.
type ResolveResult struct {
	ResID string `json:"res_id" yaml:"res_id"`
	IsNew bool   `json:"is_new" yaml:"is_new"`
	Token string `json:"token" yaml:"token"`
}

// AttachResult is the answer to an attach.
type AttachResult struct {
	ResID string `json:"res_id" yaml:"res_id"`
	Token string `json:"token" yaml:"token"`
}

// Resolve resolves the client token to a namespace, allocating a new session
// when the token is absent or unknown. The client adopts the returned token.
func (c *HTTPClient) Resolve(ctx context.Context) (*ResolveResult, error) {
	resp, err := c.Post(ctx, "/mws/", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	token := resp.Header.Get(TokenHeader)

	var result ResolveResult
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	if token != "" {
		result.Token = token
		c.token = token
	} else {
		result.Token = c.token
	}
	return &result, nil
}

// KeepAlive refreshes the session bound to resID.
func (c *HTTPClient) KeepAlive(ctx context.Context, resID string) error {
	resp, err := c.Post(ctx, sessionPath(resID)+"/keep-alive", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, nil)
}

// Attach mints a second token for resID. The client keeps its own token.
func (c *HTTPClient) Attach(ctx context.Context, resID string) (*AttachResult, error) {
	resp, err := c.Post(ctx, sessionPath(resID)+"/attach", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var result AttachResult
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Call runs a collection method with its JSON arguments and returns the raw
// response body, or nil when the method has no result.
func (c *HTTPClient) Call(ctx context.Context, resID, coll, method string, args json.RawMessage) (json.RawMessage, error) {
	op, ok := operations[method]
	if !ok {
		return nil, fmt.Errorf("unknown collection method %q", method)
	}

	path := sessionPath(resID) + "/db/" + url.PathEscape(coll) + "/" + method
	var (
		resp *http.Response
		err  error
	)
	switch op.Method {
	case http.MethodGet:
		resp, err = c.Get(ctx, path, args)
	case http.MethodPost:
		resp, err = c.Post(ctx, path, args)
	case http.MethodPut:
		resp, err = c.Put(ctx, path, args)
	default:
		resp, err = c.Delete(ctx, path, args)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if !op.Result {
		return nil, ParseResponse(resp, nil)
	}
	var result json.RawMessage
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CollectionNames lists the logical collection names of a namespace.
func (c *HTTPClient) CollectionNames(ctx context.Context, resID string) ([]string, error) {
	resp, err := c.Get(ctx, sessionPath(resID)+"/db/getCollectionNames", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var result struct {
		Result []string `json:"result"`
	}
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

// DropDatabase drops every collection of a namespace.
func (c *HTTPClient) DropDatabase(ctx context.Context, resID string) error {
	resp, err := c.Delete(ctx, sessionPath(resID)+"/db", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, nil)
}

// Validate checks a collection against the expected documents. An empty
// mode lets the server default to equals.
func (c *HTTPClient) Validate(ctx context.Context, resID, coll, mode string, documents json.RawMessage) (bool, error) {
	body := map[string]any{"documents": documents}
	if mode != "" {
		body["mode"] = mode
	}
	resp, err := c.Post(ctx, "/mws/"+url.PathEscape(resID)+"/validate/"+url.PathEscape(coll), body)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	var result struct {
		Result bool `json:"result"`
	}
	if err := ParseResponse(resp, &result); err != nil {
		return false, err
	}
	return result.Result, nil
}

// LoadJSON loads fixture collections into a namespace.
func (c *HTTPClient) LoadJSON(ctx context.Context, resID string, collections map[string]json.RawMessage) error {
	resp, err := c.Post(ctx, "/init/load_json", map[string]any{
		"res_id":      resID,
		"collections": collections,
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, nil)
}

// Probe queries /health or /ready and returns the reported status.
func (c *HTTPClient) Probe(ctx context.Context, path string) (map[string]string, error) {
	resp, err := c.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var result map[string]string
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Status fetches the admin status summary.
func (c *HTTPClient) Status(ctx context.Context) (map[string]any, error) {
	resp, err := c.Get(ctx, "/admin/v1/status", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var result map[string]any
	if err := ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func sessionPath(resID string) string {
	return "/mws/" + url.PathEscape(resID)
}
