package query

// Collection-level operations over an ordered slice of stored documents.
// Callers own locking and persistence; nothing here mutates its inputs.

// FindSpec is a compiled-once description of a read.
type FindSpec struct {
	Filter     []byte
	Projection []byte
	Sort       []byte
	Skip       int
	Limit      int
}

// Find returns the documents matching spec in result order.
func Find(docs [][]byte, spec FindSpec) ([][]byte, error) {
	filter, err := CompileFilter(spec.Filter)
	if err != nil {
		return nil, err
	}
	proj, err := CompileProjection(spec.Projection)
	if err != nil {
		return nil, err
	}
	order, err := CompileSort(spec.Sort)
	if err != nil {
		return nil, err
	}
	if spec.Skip < 0 {
		return nil, errorf("skip value must be non-negative, but received: %d", spec.Skip)
	}

	matched := make([][]byte, 0)
	for _, d := range docs {
		if filter.Match(d) {
			matched = append(matched, d)
		}
	}
	order.Apply(matched)
	matched = window(matched, spec.Skip, spec.Limit)

	if proj.IsEmpty() {
		return matched, nil
	}
	out := make([][]byte, len(matched))
	for i, d := range matched {
		if out[i], err = proj.Apply(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Count returns the number of documents matching filter after skip and limit.
func Count(docs [][]byte, filter []byte, skip, limit int) (int, error) {
	f, err := CompileFilter(filter)
	if err != nil {
		return 0, err
	}
	if skip < 0 {
		return 0, errorf("skip value must be non-negative, but received: %d", skip)
	}
	n := 0
	for _, d := range docs {
		if f.Match(d) {
			n++
		}
	}
	n -= skip
	if n < 0 {
		n = 0
	}
	if limit = abs(limit); limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

// Select returns the positions of the documents matching filter.
func Select(docs [][]byte, filter []byte, justOne bool) ([]int, error) {
	f, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, d := range docs {
		if !f.Match(d) {
			continue
		}
		idx = append(idx, i)
		if justOne {
			break
		}
	}
	return idx, nil
}

// Remove returns docs without the positions in idx, which must be ascending.
func Remove(docs [][]byte, idx []int) [][]byte {
	if len(idx) == 0 {
		return docs
	}
	out := make([][]byte, 0, len(docs)-len(idx))
	j := 0
	for i, d := range docs {
		if j < len(idx) && idx[j] == i {
			j++
			continue
		}
		out = append(out, d)
	}
	return out
}

// PrepareInsert normalizes docs and assigns an _id to those without one.
func PrepareInsert(docs [][]byte, newID func() string) ([][]byte, error) {
	out := make([][]byte, len(docs))
	for i, raw := range docs {
		doc, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		out[i] = WithID(doc, StringID(newID()))
	}
	return out, nil
}

// UpdateSpec describes an update request.
type UpdateSpec struct {
	Filter []byte
	Update []byte
	Upsert bool
	Multi  bool
}

// Change replaces the document at Index with Doc.
type Change struct {
	Index int
	Doc   []byte
}

// UpdatePlan is the computed effect of an update.
type UpdatePlan struct {
	Changes  []Change
	Inserted []byte
	Matched  int
}

// Modified returns the number of documents whose content changes.
func (p *UpdatePlan) Modified() int {
	return len(p.Changes)
}

// SizeDelta returns the change in stored bytes if p is applied to docs.
func (p *UpdatePlan) SizeDelta(docs [][]byte) int64 {
	var delta int64
	for _, c := range p.Changes {
		delta += int64(len(c.Doc)) - int64(len(docs[c.Index]))
	}
	return delta + int64(len(p.Inserted))
}

// Apply returns a copy of docs with the plan applied.
func (p *UpdatePlan) Apply(docs [][]byte) [][]byte {
	out := make([][]byte, len(docs), len(docs)+1)
	copy(out, docs)
	for _, c := range p.Changes {
		out[c.Index] = c.Doc
	}
	if p.Inserted != nil {
		out = append(out, p.Inserted)
	}
	return out
}

// PlanUpdate computes the effect of spec on docs without applying it.
// newID supplies the _id of an upserted document that has none.
func PlanUpdate(docs [][]byte, spec UpdateSpec, newID func() string) (*UpdatePlan, error) {
	filter, err := CompileFilter(spec.Filter)
	if err != nil {
		return nil, err
	}
	u, err := CompileUpdate(spec.Update)
	if err != nil {
		return nil, err
	}
	if u.IsReplacement() && spec.Multi {
		return nil, errorf("multi update only works with $ operators")
	}

	plan := &UpdatePlan{}
	for i, d := range docs {
		if !filter.Match(d) {
			continue
		}
		plan.Matched++
		updated, err := u.Apply(d)
		if err != nil {
			return nil, err
		}
		updated = compact(updated)
		if string(updated) != string(d) {
			plan.Changes = append(plan.Changes, Change{Index: i, Doc: updated})
		}
		if !spec.Multi {
			break
		}
	}

	if plan.Matched == 0 && spec.Upsert {
		doc, err := UpsertDocument(spec.Filter, u)
		if err != nil {
			return nil, err
		}
		plan.Inserted = WithID(compact(doc), StringID(newID()))
	}
	return plan, nil
}

func window(docs [][]byte, skip, limit int) [][]byte {
	if skip >= len(docs) {
		return docs[:0]
	}
	docs = docs[skip:]
	if limit = abs(limit); limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
