// Package docstore provides a generic hierarchical document store: named JSON
// documents addressed by slash paths, with change subscriptions and atomic
// read-modify-write per document. Backends: in-memory and Postgres, with
// change fan-out through a pluggable notifier.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Snapshot is the full state of one document at a point in time. Exists is
// false for absent documents; callers must check it before decoding.
type Snapshot struct {
	Path      string
	Exists    bool
	Data      json.RawMessage
	UpdatedAt time.Time
}

func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// Tx is the handle passed to a transaction function. All operations apply to
// the single document the transaction was opened on.
type Tx interface {
	Get() (Snapshot, error)
	Set(value any, merge bool) error
	Update(fields map[string]any) error
}

// CancelFunc tears down a subscription. Calling it more than once is a no-op.
type CancelFunc func()

type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set writes the whole document. With merge, top-level fields of value are
	// folded into the existing document instead of replacing it.
	Set(ctx context.Context, path string, value any, merge bool) error
	// Update merges dotted field paths ("resolution.forum") into the nested
	// document. Fails with ErrNotFound when the document is absent.
	Update(ctx context.Context, path string, fields map[string]any) error
	// AppendToSet appends value to the array at a dotted field, skipping the
	// append when a deep-equal element is already present.
	AppendToSet(ctx context.Context, path, field string, value any) error
	// RunTransaction runs fn with reads and writes serialized against all
	// other writes on the same document.
	RunTransaction(ctx context.Context, path string, fn func(Tx) error) error
	// List returns the direct children of prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]Snapshot, error)
	// Subscribe delivers the current snapshot immediately, then a fresh
	// snapshot after every change, until cancelled.
	Subscribe(path string, onChange func(Snapshot), onError func(error)) (CancelFunc, error)
	// CollectionSubscribe delivers the ordered list of direct children of
	// prefix, immediately and after every child change.
	CollectionSubscribe(prefix string, onChange func([]Snapshot), onError func(error)) (CancelFunc, error)
	// ServerTime returns the store's clock, so timestamps are immune to
	// client clock skew.
	ServerTime(ctx context.Context) (time.Time, error)
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// normalize converts value into JSON-generic form (maps, slices, float64,
// string, bool, nil) so stored documents compare and merge consistently.
func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

func normalizeMap(value any) (map[string]any, error) {
	out, err := normalize(value)
	if err != nil {
		return nil, err
	}
	doc, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document value must be a JSON object, got %T", out)
	}
	return doc, nil
}

// applyFields merges dotted field paths into doc, creating intermediate
// objects as needed.
func applyFields(doc map[string]any, fields map[string]any) error {
	for field, value := range fields {
		normalized, err := normalize(value)
		if err != nil {
			return err
		}
		node := doc
		parts := strings.Split(field, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = normalized
	}
	return nil
}

// appendUnique appends value to the array at the dotted field, creating the
// array when absent. Returns false without modifying the document when a
// deep-equal element already exists.
func appendUnique(doc map[string]any, field string, value any) (bool, error) {
	normalized, err := normalize(value)
	if err != nil {
		return false, err
	}
	node := doc
	parts := strings.Split(field, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	leaf := parts[len(parts)-1]
	existing, ok := node[leaf].([]any)
	if !ok {
		if node[leaf] != nil {
			return false, fmt.Errorf("field %s is not an array", field)
		}
		existing = []any{}
	}
	want, err := json.Marshal(normalized)
	if err != nil {
		return false, fmt.Errorf("marshal set element: %w", err)
	}
	for _, element := range existing {
		have, err := json.Marshal(element)
		if err != nil {
			return false, fmt.Errorf("marshal existing element: %w", err)
		}
		if bytes.Equal(want, have) {
			return false, nil
		}
	}
	node[leaf] = append(existing, normalized)
	return true, nil
}

func mergeTop(dst, src map[string]any) {
	for key, value := range src {
		dst[key] = value
	}
}

func encodeDoc(doc map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}
