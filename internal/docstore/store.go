package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"parent-wellness/internal/models"
)

// ErrNotFound no document at the path
var ErrNotFound = errors.New("document not found")

// Document free-form key-value document
type Document = map[string]interface{}

// Snapshot one document returned by Get or List
type Snapshot struct {
	ID   string
	Path string
	Data Document
}

// Op filter comparison operator
type Op string

const (
	OpEq  Op = "=="
	OpGte Op = ">="
	OpLte Op = "<="
	OpGt  Op = ">"
	OpLt  Op = "<"
)

// Filter field comparison applied to documents of a collection
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query collection listing options; zero value lists everything
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where adds a filter
func (q Query) Where(field string, op Op, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Store cloud document database.
// Set overwrites, Merge updates the given fields and creates the document when absent.
type Store interface {
	Set(ctx context.Context, path string, doc Document) error
	Merge(ctx context.Context, path string, doc Document) error
	Get(ctx context.Context, path string) (*Snapshot, error)
	List(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	Delete(ctx context.Context, path string) error
	Ping(ctx context.Context) error
	Close() error
}

// splitPath returns the parent collection path and the document id
func splitPath(path string) (string, string, error) {
	path = strings.Trim(path, "/")
	segments := strings.Split(path, "/")
	if path == "" || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("not a document path: %q", path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("empty segment in path: %q", path)
		}
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

func validCollection(collection string) (string, error) {
	collection = strings.Trim(collection, "/")
	if collection == "" || len(strings.Split(collection, "/"))%2 != 1 {
		return "", fmt.Errorf("not a collection path: %q", collection)
	}
	return collection, nil
}

// matches evaluates a filter against a decoded document
func matches(doc Document, f Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}
	c, comparable := compare(v, f.Value)
	if !comparable {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpGte:
		return c >= 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	}
	return false
}

// compare orders numbers numerically, strings lexically, bools false<true
func compare(a, b interface{}) (int, bool) {
	if fa, ok := numeric(a); ok {
		fb, ok := numeric(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// numeric is models.Float without the string parsing
func numeric(v interface{}) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return models.Float(v)
}

// applyQuery filters, orders and limits snapshots in memory
func applyQuery(snaps []Snapshot, q Query) []Snapshot {
	out := snaps[:0]
	for _, s := range snaps {
		keep := true
		for _, f := range q.Filters {
			if !matches(s.Data, f) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, s)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c, _ := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
