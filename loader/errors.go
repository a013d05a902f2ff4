package loader

import (
	"errors"
	"fmt"
)

// Kinds of ConfigurationError.
var (
	ErrRankMismatch    = errors.New("dimension count does not match array rank")
	ErrDimension       = errors.New("invalid dimension")
	ErrPyramidShape    = errors.New("pyramid levels must strictly decrease in size")
	ErrSelectionShape  = errors.New("malformed channel selection")
	ErrUnresolvedLabel = errors.New("unresolved dimension label")
	ErrUnlabeled       = errors.New("unlabeled dimensions")
	ErrRGBMultiplicity = errors.New("rgb sources accept a single channel selection")
)

// ErrLevelOutOfRange is returned by retrievals that name a pyramid level the
// source does not have. It is not a ConfigurationError.
var ErrLevelOutOfRange = errors.New("resolution level out of range")

// ConfigurationError reports a rejected construction or selection. Kind is
// one of the Err* sentinels above and is what errors.Is matches on.
type ConfigurationError struct {
	Kind   error
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *ConfigurationError) Unwrap() error { return e.Kind }

func configErr(kind error, format string, args ...interface{}) error {
	return &ConfigurationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
