package sync

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a connector that cannot talk to the service at all,
// e.g. a missing or invalid API key. It is raised before any request is sent.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// ValidationError reports malformed input detected locally, before a request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}

// ServiceError is returned for any non-2xx response or transport failure.
// StatusCode is 0 when no response was received.
type ServiceError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("service error: %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("service error: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// MappingConfigurationError is raised when a resource has no outbound mapping configured.
type MappingConfigurationError struct {
	Resource Resource
}

func (e *MappingConfigurationError) Error() string {
	return fmt.Sprintf("%s: no outbound field mappings configured for %s", MessageMappingNoOutboundFields.Message, e.Resource)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a ServiceError with status 404.
func IsNotFound(err error) bool {
	var target *ServiceError
	return errors.As(err, &target) && target.StatusCode == 404
}
