package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type leaf struct {
	path  string
	value string
}

// flatten expands v into path/value pairs: objects as "a.b", lists as "a[0]".
func flatten(path string, v any) []leaf {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return []leaf{{path: path, value: "{}"}}
		}
		var out []leaf
		for _, k := range sortedFields(t) {
			out = append(out, flatten(path+"."+k, t[k])...)
		}
		return out
	case []any:
		if len(t) == 0 {
			return []leaf{{path: path, value: "[]"}}
		}
		var out []leaf
		for i, item := range t {
			out = append(out, flatten(fmt.Sprintf("%s[%d]", path, i), item)...)
		}
		return out
	default:
		return []leaf{{path: path, value: formatValue(v)}}
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func sortedFields(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
