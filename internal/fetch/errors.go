package fetch

import (
	"errors"
	"fmt"
)

// ConnectionError covers transport-level failures: DNS, refused connections,
// timeouts.
type ConnectionError struct {
	Code   int
	Detail string
}

func (e *ConnectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("connection error %d: %s", e.Code, e.Detail)
	}
	return "connection error: " + e.Detail
}

// HTTPError covers non-success HTTP statuses.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.Status, e.Detail)
}

// IOError covers local filesystem failures while storing a download.
type IOError struct {
	Detail string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("download io error: %s: %v", e.Detail, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SecurityError covers TLS and certificate failures.
type SecurityError struct {
	Detail string
}

func (e *SecurityError) Error() string {
	return "security error: " + e.Detail
}

// VerificationError indicates a downloaded package did not match its expected
// hash.
type VerificationError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// NotRetrieved reports whether err means the resource could not be fetched in
// a way that permits trying an alternate identifier (used by the resolver's
// primary-manifest fallback).
func NotRetrieved(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 404
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
