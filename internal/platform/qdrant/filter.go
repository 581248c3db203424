package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

// The retrieval layer filters chunk payloads with flat field maps: a
// bare scalar means equality, and operator objects carry $eq, $ne or
// $in. Anything richer is rejected so a silently ignored condition can
// never widen a case-scoped search.
const (
	filterOpEq = "$eq"
	filterOpNe = "$ne"
	filterOpIn = "$in"
)

type payloadFilter struct {
	Must    []any
	MustNot []any
}

func (f payloadFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

func translateChunkFilter(filter map[string]any) (payloadFilter, error) {
	out := payloadFilter{}
	if len(filter) == 0 {
		return out, nil
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		key := strings.TrimSpace(field)
		if key == "" {
			continue
		}
		if strings.HasPrefix(key, "$") {
			return payloadFilter{}, opErr(
				"filter_translate",
				OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported top-level filter operator %q", key),
				nil,
			)
		}
		if err := out.addFieldConditions(key, filter[field]); err != nil {
			return payloadFilter{}, err
		}
	}
	return out, nil
}

func (f *payloadFilter) addFieldConditions(field string, value any) error {
	ops, isOperatorMap := value.(map[string]any)
	if !isOperatorMap {
		scalar, ok := filterScalar(value)
		if !ok {
			return opErr(
				"filter_translate",
				OperationErrorValidation,
				fmt.Sprintf("field %q expects scalar value or operator object", field),
				nil,
			)
		}
		f.Must = append(f.Must, matchCondition(field, scalar))
		return nil
	}

	if len(ops) == 0 {
		return opErr(
			"filter_translate",
			OperationErrorValidation,
			fmt.Sprintf("field %q has empty operator map", field),
			nil,
		)
	}
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	for _, op := range names {
		operand := ops[op]
		switch strings.ToLower(strings.TrimSpace(op)) {
		case filterOpEq:
			scalar, ok := filterScalar(operand)
			if !ok {
				return opErr(
					"filter_translate",
					OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar value", filterOpEq, field),
					nil,
				)
			}
			f.Must = append(f.Must, matchCondition(field, scalar))
		case filterOpNe:
			scalar, ok := filterScalar(operand)
			if !ok {
				return opErr(
					"filter_translate",
					OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar value", filterOpNe, field),
					nil,
				)
			}
			f.MustNot = append(f.MustNot, matchCondition(field, scalar))
		case filterOpIn:
			values, err := filterScalarSlice(operand)
			if err != nil {
				return opErr(
					"filter_translate",
					OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar array", filterOpIn, field),
					err,
				)
			}
			if len(values) == 0 {
				return opErr(
					"filter_translate",
					OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q cannot be empty", filterOpIn, field),
					nil,
				)
			}
			f.Must = append(f.Must, map[string]any{
				"key": field,
				"match": map[string]any{
					"any": values,
				},
			})
		default:
			return opErr(
				"filter_translate",
				OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported filter operator %q for field %q", op, field),
				nil,
			)
		}
	}
	return nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}

func filterScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := filterScalar(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

// filterScalar admits the value types chunk metadata actually stores:
// strings (ids, names), ints (chunk index, page and paragraph numbers,
// possibly float64 after a JSON round trip) and bools.
func filterScalar(value any) (any, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case bool:
		return typed, true
	case int:
		return typed, true
	case int64:
		return typed, true
	case float64:
		return typed, true
	default:
		return nil, false
	}
}
