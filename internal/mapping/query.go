package mapping

import (
	"apollocfg/internal/types"
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// GetJSON decodes the JSON document stored under key into out.
func (m *Mapping) GetJSON(ctx context.Context, key string, out any) error {
	v, ok := m.Lookup(ctx, key)
	if !ok {
		return types.Err(types.ErrNotFound, nil, "key %q in namespace %q", key, m.namespace)
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// Query evaluates a JMESPath expression against the JSON document stored under key.
// A key whose value is not JSON is an error; an expression matching nothing returns nil.
func (m *Mapping) Query(ctx context.Context, key, expression string) (any, error) {
	var doc any
	if err := m.GetJSON(ctx, key, &doc); err != nil {
		return nil, err
	}
	return EvalAny(expression, doc)
}

// EvalAny returns the raw value selected by the JMESPath expression.
// It is safe to pass any decoded JSON (map[string]any, []any, etc.)
// It will return nil and no error if the expression does not match anything.
func EvalAny(expression string, doc any) (any, error) {
	v, err := jmespath.Search(expression, doc)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

// EvalString coerces the selection to string; other values are JSON-encoded.
func EvalString(expression string, doc any) (*string, error) {
	v, err := EvalAny(expression, doc)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return &t, nil
	default:
		b, _ := json.Marshal(t)
		bs := string(b)
		return &bs, nil
	}
}
