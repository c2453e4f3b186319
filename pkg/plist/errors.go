package plist

import "fmt"

// NotFoundError indicates the document does not exist on disk.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plist not found: %s", e.Path)
}

// MalformedError indicates the document exists but cannot be decoded.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed plist: %v", e.Err)
	}
	return fmt.Sprintf("malformed plist %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure while reading or writing a document.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("plist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
