package exporter

import "fmt"

// PasswordFileError is returned when the configured Redis password file
// cannot be opened or read. No connection is attempted in that case.
type PasswordFileError struct {
	Path string
	Err  error
}

func (e *PasswordFileError) Error() string {
	return fmt.Sprintf("failed to read redis password file %s: %v", e.Path, e.Err)
}

func (e *PasswordFileError) Unwrap() error {
	return e.Err
}

// StoreError is returned when a connection handle to the backing store
// cannot be established.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("redis %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
