package plist

import "time"

// String returns the string value stored under key.
func (d Dict) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// StringDefault returns the string under key or fallback when absent.
func (d Dict) StringDefault(key, fallback string) string {
	if v, ok := d.String(key); ok {
		return v
	}
	return fallback
}

// Int returns the integer value stored under key. Floats with integral
// values coerce; other types do not.
func (d Dict) Int(key string) (int64, bool) {
	switch v := d[key].(type) {
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// Bool returns the boolean value stored under key.
func (d Dict) Bool(key string) (bool, bool) {
	v, ok := d[key].(bool)
	return v, ok
}

// BoolDefault returns the boolean under key or fallback when absent.
func (d Dict) BoolDefault(key string, fallback bool) bool {
	if v, ok := d.Bool(key); ok {
		return v
	}
	return fallback
}

// Float returns the floating-point value stored under key. Integers coerce.
func (d Dict) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Date returns the date value stored under key.
func (d Dict) Date(key string) (time.Time, bool) {
	v, ok := d[key].(time.Time)
	return v, ok
}

// Data returns the binary blob stored under key.
func (d Dict) Data(key string) ([]byte, bool) {
	v, ok := d[key].([]byte)
	return v, ok
}

// Array returns the array stored under key.
func (d Dict) Array(key string) (Array, bool) {
	v, ok := d[key].(Array)
	return v, ok
}

// Dict returns the nested dictionary stored under key.
func (d Dict) Dict(key string) (Dict, bool) {
	v, ok := d[key].(Dict)
	return v, ok
}

// StringSlice returns the array under key filtered to its string members.
func (d Dict) StringSlice(key string) []string {
	arr, ok := d.Array(key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DictSlice returns the array under key filtered to its dictionary members.
func (d Dict) DictSlice(key string) []Dict {
	arr, ok := d.Array(key)
	if !ok {
		return nil
	}
	out := make([]Dict, 0, len(arr))
	for _, item := range arr {
		if sub, ok := item.(Dict); ok {
			out = append(out, sub)
		}
	}
	return out
}

// Clone returns a deep copy of the dictionary.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Dict:
		return val.Clone()
	case Array:
		out := make(Array, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}
