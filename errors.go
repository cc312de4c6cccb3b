package lazyrag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for contract violations.
var (
	// ErrInvalidConfig signals a configuration mapping with a missing or
	// malformed field.
	ErrInvalidConfig = errors.New("lazyrag: invalid config")
	// ErrUnknownServerType signals a type tag with no registered factory.
	ErrUnknownServerType = errors.New("lazyrag: unknown server type")
	// ErrDuplicateRegistration signals a re-registered type tag under the
	// reject-duplicates policy.
	ErrDuplicateRegistration = errors.New("lazyrag: duplicate registration")
	// ErrInvalidTopK signals a non-positive topk.
	ErrInvalidTopK = errors.New("lazyrag: topk must be positive")
	// ErrNoSource signals an Ensure call on a backend without a content source.
	ErrNoSource = errors.New("lazyrag: no content source configured")
)

// ConfigError wraps ErrInvalidConfig with the offending key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: key %q %s", ErrInvalidConfig.Error(), e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError creates a config error for one key.
func NewConfigError(key, reason string) error {
	return &ConfigError{Key: key, Reason: reason}
}

// UnknownServerTypeError wraps ErrUnknownServerType with the offending tag
// and the tags that are registered, so callers can surface both.
type UnknownServerTypeError struct {
	Type  string
	Known []string
}

func (e *UnknownServerTypeError) Error() string {
	return fmt.Sprintf("%s: %q (known: %s)",
		ErrUnknownServerType.Error(), e.Type, strings.Join(e.Known, ", "))
}

func (e *UnknownServerTypeError) Unwrap() error { return ErrUnknownServerType }

// DuplicateRegistrationError wraps ErrDuplicateRegistration with the tag.
type DuplicateRegistrationError struct {
	Type string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDuplicateRegistration.Error(), e.Type)
}

func (e *DuplicateRegistrationError) Unwrap() error { return ErrDuplicateRegistration }
