package models

import "errors"

// Error taxonomy shared across packages. Callers match with errors.Is;
// call sites wrap these with context using fmt.Errorf("%w: ...").
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("run not found")
	ErrInputType     = errors.New("unsupported input type")
	ErrState         = errors.New("invalid run state")
)
