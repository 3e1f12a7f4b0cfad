package vectorstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Filter operators accepted in metadata filters.
const (
	FilterAnd = "$and"
	FilterOr  = "$or"
	FilterNot = "$not"
	FilterEq  = "$eq"
	FilterNe  = "$ne"
	FilterIn  = "$in"
	FilterNin = "$nin"
	FilterGt  = "$gt"
	FilterGte = "$gte"
	FilterLt  = "$lt"
	FilterLte = "$lte"
)

// Condition is the backend neutral form of a metadata filter.
// Logical nodes carry Children; leaf nodes carry Field and Value.
type Condition struct {
	Op       string
	Field    string
	Value    any
	Children []Condition
}

// ParseFilter validates a Mongo style filter map. A nil condition means
// "match everything".
func ParseFilter(filter map[string]any) (*Condition, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	c, err := parseObject(filter)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func parseObject(obj map[string]any) (Condition, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Condition
	for _, key := range keys {
		value := obj[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}

		if strings.HasPrefix(k, "$") {
			switch strings.ToLower(k) {
			case FilterAnd, FilterOr:
				items, err := toObjectSlice(value)
				if err != nil {
					return Condition{}, opErr("filter_parse", OperationErrorValidation, fmt.Sprintf("operator %s expects array of objects", k), err)
				}
				node := Condition{Op: strings.ToLower(k)}
				for _, item := range items {
					sub, err := parseObject(item)
					if err != nil {
						return Condition{}, err
					}
					node.Children = append(node.Children, sub)
				}
				parts = append(parts, node)
			case FilterNot:
				item, ok := value.(map[string]any)
				if !ok {
					return Condition{}, opErr("filter_parse", OperationErrorValidation, "operator $not expects an object", nil)
				}
				sub, err := parseObject(item)
				if err != nil {
					return Condition{}, err
				}
				parts = append(parts, Condition{Op: FilterNot, Children: []Condition{sub}})
			default:
				return Condition{}, opErr("filter_parse", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported top-level filter operator %q", k), nil)
			}
			continue
		}

		field, err := parseField(k, value)
		if err != nil {
			return Condition{}, err
		}
		parts = append(parts, field...)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return Condition{Op: FilterAnd, Children: parts}, nil
}

func parseField(field string, value any) ([]Condition, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		if !isScalar(value) {
			return nil, opErr("filter_parse", OperationErrorValidation, fmt.Sprintf("field %q expects a scalar or operator object", field), nil)
		}
		return []Condition{{Op: FilterEq, Field: field, Value: value}}, nil
	}

	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Condition
	for _, k := range keys {
		op := strings.ToLower(strings.TrimSpace(k))
		v := ops[k]
		switch op {
		case FilterEq, FilterNe, FilterGt, FilterGte, FilterLt, FilterLte:
			if !isScalar(v) {
				return nil, opErr("filter_parse", OperationErrorValidation, fmt.Sprintf("operator %s on %q expects a scalar", op, field), nil)
			}
			if op != FilterEq && op != FilterNe {
				if _, ok := toFloat(v); !ok {
					return nil, opErr("filter_parse", OperationErrorValidation, fmt.Sprintf("operator %s on %q expects a number", op, field), nil)
				}
			}
		case FilterIn, FilterNin:
			items, err := toScalarSlice(v)
			if err != nil {
				return nil, opErr("filter_parse", OperationErrorValidation, fmt.Sprintf("operator %s on %q expects an array", op, field), err)
			}
			v = items
		default:
			return nil, opErr("filter_parse", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported operator %q on field %q", k, field), nil)
		}
		out = append(out, Condition{Op: op, Field: field, Value: v})
	}
	return out, nil
}

// Match evaluates the condition against a metadata map.
func (c *Condition) Match(metadata map[string]any) bool {
	if c == nil {
		return true
	}
	switch c.Op {
	case FilterAnd:
		for i := range c.Children {
			if !c.Children[i].Match(metadata) {
				return false
			}
		}
		return true
	case FilterOr:
		for i := range c.Children {
			if c.Children[i].Match(metadata) {
				return true
			}
		}
		return false
	case FilterNot:
		return !c.Children[0].Match(metadata)
	}

	actual, present := metadata[c.Field]
	switch c.Op {
	case FilterEq:
		return present && scalarEqual(actual, c.Value)
	case FilterNe:
		return !present || !scalarEqual(actual, c.Value)
	case FilterIn, FilterNin:
		found := false
		for _, v := range c.Value.([]any) {
			if present && scalarEqual(actual, v) {
				found = true
				break
			}
		}
		if c.Op == FilterIn {
			return found
		}
		return !found
	case FilterGt, FilterGte, FilterLt, FilterLte:
		a, ok := toFloat(actual)
		if !present || !ok {
			return false
		}
		b, _ := toFloat(c.Value)
		switch c.Op {
		case FilterGt:
			return a > b
		case FilterGte:
			return a >= b
		case FilterLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

func scalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, nil:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toObjectSlice(value any) ([]map[string]any, error) {
	switch items := value.(type) {
	case []map[string]any:
		return items, nil
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object, got %T", item)
			}
			out = append(out, obj)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array, got %T", value)
}

func toScalarSlice(value any) ([]any, error) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("expected array, got %T", value)
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if !isScalar(item) {
			return nil, fmt.Errorf("expected scalar, got %T", item)
		}
		out = append(out, item)
	}
	return out, nil
}
