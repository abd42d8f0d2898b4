package service

import (
	"context"
	"encoding/json"
	"sort"
)

// FixtureLoader seeds tenant collections with documents.
type FixtureLoader struct {
	data *DataService
}

// NewFixtureLoader creates a new FixtureLoader.
func NewFixtureLoader(data *DataService) *FixtureLoader {
	return &FixtureLoader{data: data}
}

// LoadRequest contains parameters for loading fixtures.
type LoadRequest struct {
	Token       string
	ResID       string
	Collections map[string]json.RawMessage // logical name -> document(s)
}

// Load inserts each collection's documents through the normal insert path,
// so session, rate limit and quota checks apply to every collection.
// Collections load in name order and loading stops at the first error.
func (l *FixtureLoader) Load(ctx context.Context, req *LoadRequest) error {
	names := make([]string, 0, len(req.Collections))
	for name := range req.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := l.data.Insert(ctx, &InsertRequest{
			Target:    Target{Token: req.Token, ResID: req.ResID, Collection: name},
			Documents: req.Collections[name],
		})
		if err != nil {
			return err
		}
	}
	return nil
}
