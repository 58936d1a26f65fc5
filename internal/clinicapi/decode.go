package clinicapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeList normalizes the list responses of every endpoint family: a bare
// array, {"data": [...]} or {"content": [...]} all decode into []T. A null or
// empty body is an empty list.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("clinicapi: decode list: %w", err)
		}
		return nonNil(items), nil
	}
	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("clinicapi: decode envelope: %w", err)
	}
	inner := envelope.Data
	if len(bytes.TrimSpace(inner)) == 0 || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		inner = envelope.Content
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || bytes.Equal(inner, []byte("null")) {
		return []T{}, nil
	}
	if inner[0] == '{' {
		// paged envelopes nest one level deeper: {"data": {"content": [...]}}
		return decodeList[T](inner)
	}
	var items []T
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, fmt.Errorf("clinicapi: decode list: %w", err)
	}
	return nonNil(items), nil
}

// decodeOne accepts a bare object or one wrapped in {"data": {...}}.
func decodeOne[T any](raw json.RawMessage) (T, error) {
	var zero T
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return zero, nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		inner := bytes.TrimSpace(envelope.Data)
		if len(inner) > 0 && inner[0] == '{' {
			raw = inner
		}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("clinicapi: decode object: %w", err)
	}
	return out, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
