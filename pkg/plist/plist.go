// Package plist reads and writes Apple property-list documents as dynamic,
// typed dictionaries. It is the storage layer for every persisted artifact
// the agent keeps on disk: manifests, catalogs, install info, preferences,
// tracking documents and report files.
package plist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	howett "howett.net/plist"
)

// Dict is a property-list dictionary. Values are one of: string, int64,
// float64, bool, time.Time, []byte, Array, or Dict.
type Dict map[string]any

// Array is an ordered property-list array.
type Array []any

// Unmarshal decodes a property-list document (XML or binary) whose root is a
// dictionary.
func Unmarshal(data []byte) (Dict, error) {
	var raw any
	if _, err := howett.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedError{Err: err}
	}
	normalized := normalize(raw)
	dict, ok := normalized.(Dict)
	if !ok {
		return nil, &MalformedError{Err: fmt.Errorf("root is %T, expected dictionary", raw)}
	}
	return dict, nil
}

// UnmarshalValue decodes a property-list document with any root type,
// normalized to the Dict/Array/int64 model.
func UnmarshalValue(data []byte) (any, error) {
	var raw any
	if _, err := howett.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedError{Err: err}
	}
	return normalize(raw), nil
}

// ReadArrayFile loads a property-list file whose root is an array.
func ReadArrayFile(path string) (Array, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	value, err := UnmarshalValue(data)
	if err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			malformed.Path = path
		}
		return nil, err
	}
	arr, ok := value.(Array)
	if !ok {
		return nil, &MalformedError{Path: path, Err: fmt.Errorf("root is %T, expected array", value)}
	}
	return arr, nil
}

// Marshal encodes the dictionary as an XML property list.
func Marshal(d Dict) ([]byte, error) {
	data, err := howett.MarshalIndent(denormalize(d), howett.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode plist: %w", err)
	}
	return data, nil
}

// ReadFile loads a property-list file from disk.
func ReadFile(path string) (Dict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	dict, err := Unmarshal(data)
	if err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			malformed.Path = path
		}
		return nil, err
	}
	return dict, nil
}

// WriteFile writes the dictionary to path atomically: the document is
// serialized to a temp file in the destination directory and renamed over the
// target.
func WriteFile(path string, d Dict) error {
	data, err := Marshal(d)
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create temp", Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &IOError{Op: "write temp", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "close temp", Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "chmod temp", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "rename temp", Path: path, Err: err}
	}
	return nil
}

// normalize converts the decoder's raw containers and integer widths into the
// Dict/Array/int64 model so callers see one shape regardless of source
// format.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		d := make(Dict, len(val))
		for k, item := range val {
			d[k] = normalize(item)
		}
		return d
	case []any:
		a := make(Array, len(val))
		for i, item := range val {
			a[i] = normalize(item)
		}
		return a
	case uint64:
		return int64(val)
	case uint32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}

func denormalize(v any) any {
	switch val := v.(type) {
	case Dict:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = denormalize(item)
		}
		return m
	case Array:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = denormalize(item)
		}
		return s
	default:
		return val
	}
}
