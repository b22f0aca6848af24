package infrastructure

import (
	"encoding/json"
	"sort"

	"fabric-mcp-server/internal/domain"
)

// summaryKeys are the attributes that identify a nested Jira object, in
// priority order.
var summaryKeys = []string{"name", "displayName", "value"}

// buildAllFields resolves every field id to its display name and simplifies the
// value. Fields whose name is canonical are left out. Ids are visited in sorted
// order so that two ids resolving to the same name always yield the same winner.
func buildAllFields(fields map[string]interface{}, names domain.FieldNameMap) map[string]interface{} {
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]interface{}, len(fields))
	for _, id := range ids {
		name := names.Resolve(id)
		if domain.IsCanonicalFieldName(name) {
			continue
		}
		out[name] = simplifyValue(fields[id])
	}
	return out
}

// simplifyValue reduces a raw Jira field value to something readable.
//
//	null                  -> null
//	object                -> its name, displayName or value (by key presence), else unchanged
//	list of objects       -> each element reduced to its first truthy name/displayName/value, else unchanged
//	anything else         -> unchanged
//
// Only the first element decides whether a list is treated as a list of objects.
func simplifyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		for _, k := range summaryKeys {
			if inner, ok := val[k]; ok {
				return inner
			}
		}
		return val
	case []interface{}:
		if len(val) == 0 {
			return val
		}
		if _, ok := val[0].(map[string]interface{}); !ok {
			return val
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = firstTruthy(item)
		}
		return out
	default:
		return val
	}
}

// firstTruthy returns the first truthy summary attribute of item, or item
// itself when there is none or item is not an object.
func firstTruthy(item interface{}) interface{} {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return item
	}
	for _, k := range summaryKeys {
		if inner := obj[k]; truthy(inner) {
			return inner
		}
	}
	return item
}

// truthy treats null, false, zero, and empty strings, lists and objects as false.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	case float64:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}
