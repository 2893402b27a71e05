package notify

import "fmt"

// ValidationError reports a malformed notify call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid notification: " + e.Reason
}

// ConfigurationError reports a backend that cannot be constructed because
// a required setting is missing or malformed.
type ConfigurationError struct {
	Backend string
	Key     string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: invalid %s: %v", e.Backend, e.Key, e.Err)
	}
	return fmt.Sprintf("backend %s: %q must be set in settings[%s] or passed as a kwarg", e.Backend, e.Key, e.Backend)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TemplateNotFoundError is returned when no template has the requested code.
type TemplateNotFoundError struct {
	Code string
	Err  error
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s doesn't exist", e.Code)
}

func (e *TemplateNotFoundError) Unwrap() error { return e.Err }

// UnknownBackendError is returned when no registered backend matches a
// reference.
type UnknownBackendError struct {
	Ref string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("notification backend %s doesn't exist", e.Ref)
}

// RenderError wraps a template parse or execution failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render message failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// TransportError is a channel send failure for one recipient, or for a
// whole batch when RecipientID is empty.
type TransportError struct {
	Backend     string
	RecipientID string
	Err         error
}

func (e *TransportError) Error() string {
	if e.RecipientID == "" {
		return fmt.Sprintf("%s send failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s send to %s failed: %v", e.Backend, e.RecipientID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AttributeError is returned when a recipient has no attribute with the
// requested name.
type AttributeError struct {
	RecipientID string
	Name        string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("recipient %s has no attribute %q", e.RecipientID, e.Name)
}
