package domain

import (
	"errors"
	"fmt"
)

// ErrDeviceNotConfigured is returned for names the bridge has no device for.
var ErrDeviceNotConfigured = errors.New("device not configured")

// ErrRefreshAfterAck wraps the refresh error when the vendor acknowledged a
// command but the follow-up state read failed. The command took effect; only
// the returned snapshot is stale.
var ErrRefreshAfterAck = errors.New("command acknowledged, state refresh failed")

// AuthenticationError means the vendor rejected the API key. It is a
// configuration problem and is never retried.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("invalid api key (status %d)", e.StatusCode)
}

// DeviceNotFoundError means the vendor does not know the sku/device pair.
type DeviceNotFoundError struct {
	SKU    string
	Device string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device with sku %s and id %s was not found", e.SKU, e.Device)
}

// TransportError covers non-200 statuses, network failures and timeouts.
// Callers may retry it.
type TransportError struct {
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("govee request timed out: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("govee request failed: %v", e.Err)
	default:
		return fmt.Sprintf("govee API error %d: %s", e.StatusCode, e.Body)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandRejectedError means the HTTP exchange succeeded but the vendor did
// not acknowledge the requested change.
type CommandRejectedError struct {
	Instance  string
	Requested int
	Echoed    string
	Reason    string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command %s=%d rejected: %s (echoed %s)", e.Instance, e.Requested, e.Reason, e.Echoed)
}

// UnsupportedCapabilityError means the instance or value is not defined for
// the model.
type UnsupportedCapabilityError struct {
	Model    Model
	Instance string
	Value    any
}

func (e *UnsupportedCapabilityError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("model %s does not support %s=%v", e.Model, e.Instance, e.Value)
	}
	return fmt.Sprintf("model %s does not support %s", e.Model, e.Instance)
}

// IsConfigurationError reports whether err should be surfaced to the user as
// a configuration failure rather than retried.
func IsConfigurationError(err error) bool {
	var authErr *AuthenticationError
	var notFound *DeviceNotFoundError
	return errors.As(err, &authErr) || errors.As(err, &notFound)
}

// IsRetryable reports whether err is a transport level failure.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
