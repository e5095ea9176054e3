package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Lookup walks a dotted path through decoded JSON. Map keys are matched
// exactly; numeric segments index arrays. An empty path returns data itself.
func Lookup(data interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}
	cur := data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Items returns the objects found at root. A single object counts as a one
// item list; a missing root is an empty result. Anything else is a data error.
func Items(data interface{}, root string) ([]map[string]interface{}, error) {
	v, ok := Lookup(data, root)
	if !ok || v == nil {
		return []map[string]interface{}{}, nil
	}

	switch node := v.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{node}, nil
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(node))
		for _, el := range node {
			if m, ok := el.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		return items, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "carrier payload at %q is %T, not a list", root, v)
	}
}

// MapFields builds a raw record from item, reading each canonical field from
// its dotted source path. Missing and null values are left out.
func MapFields(item map[string]interface{}, fields map[string]string) models.RawRecord {
	rec := make(models.RawRecord, len(fields))
	for canonical, source := range fields {
		v, ok := Lookup(item, source)
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		rec[canonical] = v
	}
	return rec
}

// Str renders a scalar as a string; nil becomes "".
func Str(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
