// Package services holds ready-made capability services. Each is a plain
// Go type whose exported methods scripts call through the bridge.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mgomes/vibectx/store"
)

// KV is a JSON-valued key/value capability persisted in a store Backend.
type KV struct {
	backend store.Backend
	prefix  string
}

// NewKV keeps values under prefix in backend. A nil backend keeps them in
// memory.
func NewKV(backend store.Backend, prefix string) *KV {
	if backend == nil {
		backend = store.NewMemoryStore()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "kv"
	}
	return &KV{backend: backend, prefix: prefix}
}

func (kv *KV) key(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("kv: key is required")
	}
	return kv.prefix + "/" + name, nil
}

// Get returns the value stored under key, or nil.
func (kv *KV) Get(ctx context.Context, key string) (any, error) {
	k, err := kv.key(key)
	if err != nil {
		return nil, err
	}
	raw, err := kv.backend.Get(ctx, k)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return numbers(val), nil
}

// numbers turns decoded json.Number values into int64 where integral and
// float64 otherwise.
func numbers(val any) any {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, item := range v {
			v[k] = numbers(item)
		}
	case []any:
		for i, item := range v {
			v[i] = numbers(item)
		}
	}
	return val
}

func (kv *KV) Set(ctx context.Context, key string, value any) error {
	k, err := kv.key(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return kv.backend.Put(ctx, k, raw)
}

// Delete removes key and reports whether it existed.
func (kv *KV) Delete(ctx context.Context, key string) (bool, error) {
	k, err := kv.key(key)
	if err != nil {
		return false, err
	}
	err = kv.backend.Delete(ctx, k)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	return kv.backend.List(ctx, kv.prefix)
}

func (kv *KV) MethodDocs() map[string]string {
	return map[string]string{
		"get":    "Returns the value stored under key, or nil.",
		"set":    "Stores a data value under key.",
		"delete": "Removes key; returns whether it existed.",
		"keys":   "Lists stored keys in order.",
	}
}
