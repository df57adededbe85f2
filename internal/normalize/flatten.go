package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Flatten maps a decoded JSON object onto the canonical schema. Fields
// with nothing usable get their placeholder, so every list is non-empty.
func Flatten(raw map[string]any) usecase.UseCase {
	uc := usecase.UseCase{Title: Title(raw[usecase.FieldTitle])}
	for _, f := range usecase.ListFields {
		uc.SetList(f, List(raw[f]))
	}
	uc.Stakeholders = dedupFold(uc.Stakeholders)
	uc.FillPlaceholders()
	return uc
}

// FlattenAny flattens v when it is an object and reports whether it was.
func FlattenAny(v any) (usecase.UseCase, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return usecase.UseCase{}, false
	}
	return Flatten(m), true
}

// Title coerces a raw title value. Missing or blank titles become
// usecase.DefaultTitle.
func Title(v any) string {
	if v == nil {
		return usecase.DefaultTitle
	}
	t := strings.TrimSpace(Stringify(v))
	if t == "" {
		return usecase.DefaultTitle
	}
	return t
}

// List is the total mapping from JSON shapes to a list of strings:
//
//	string  -> singleton (blank strings drop out)
//	list    -> each element mapped; nested lists are flattened
//	object  -> "key: value" strings in key order
//	number  -> singleton unless zero
//	bool    -> singleton "true"; false drops out
//	null    -> empty
func List(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		var out []string
		for _, el := range t {
			out = append(out, listElement(el)...)
		}
		return out
	case map[string]any:
		return keyValues(t)
	case bool:
		if t {
			return []string{"true"}
		}
		return nil
	case float64:
		if t == 0 {
			return nil
		}
		return []string{formatNumber(t)}
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return nil
		}
		return []string{t.String()}
	default:
		if s := strings.TrimSpace(Stringify(t)); s != "" {
			return []string{s}
		}
		return nil
	}
}

// listElement maps one element of a JSON array. Objects inside arrays are
// kept whole as compact JSON so a step stays one string.
func listElement(el any) []string {
	switch t := el.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		return List(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return []string{string(b)}
	default:
		return []string{Stringify(t)}
	}
}

func keyValues(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+Stringify(m[k]))
	}
	return out
}

// Stringify renders any decoded JSON value as text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dedupFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		k := strings.ToLower(strings.TrimSpace(v))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
