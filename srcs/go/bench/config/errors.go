package config

import "github.com/pkg/errors"

// ConfigurationError reports an invalid benchmark setup detected before any
// worker starts.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

var ErrNoDevices = &ConfigurationError{Reason: "no compute devices detected"}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
