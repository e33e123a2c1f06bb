package traces

import "strconv"

// Tags holds a span's tags normalized to string values. Instrumentation
// libraries encode the same semantic field under many key names and value
// types; consumers use Lookup with an ordered candidate key list and get
// an explicit absent result instead of relying on truthiness.
type Tags map[string]string

// Lookup tries the candidate keys in priority order and returns the first
// non-empty value.
func (t Tags) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := t[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Has reports whether any of the candidate keys is present at all,
// regardless of value.
func (t Tags) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := t[k]; ok {
			return true
		}
	}
	return false
}

// rawTag is the backend wire shape: one value field per type.
type rawTag struct {
	Key      string   `json:"key"`
	VStr     *string  `json:"v_str,omitempty"`
	VBool    *bool    `json:"v_bool,omitempty"`
	VFloat64 *float64 `json:"v_float64,omitempty"`
	VInt64   *int64   `json:"v_int64,omitempty"`
}

// stringValue flattens the typed union to a string. Unset unions yield "".
func (t rawTag) stringValue() string {
	switch {
	case t.VStr != nil:
		return *t.VStr
	case t.VBool != nil:
		return strconv.FormatBool(*t.VBool)
	case t.VInt64 != nil:
		return strconv.FormatInt(*t.VInt64, 10)
	case t.VFloat64 != nil:
		return strconv.FormatFloat(*t.VFloat64, 'f', -1, 64)
	default:
		return ""
	}
}

// tagMap builds a Tags map from the wire list.
func tagMap(raw []rawTag) Tags {
	tags := make(Tags, len(raw))
	for _, t := range raw {
		if t.Key == "" {
			continue
		}
		tags[t.Key] = t.stringValue()
	}
	return tags
}
