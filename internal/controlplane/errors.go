package controlplane

import (
	"errors"
	"fmt"
	"strings"
)

// conflictMarker is the provider's literal error wording for a resource that
// is already undergoing an update. Matching it by substring is a contract
// with the external API's error text; this constant is the only place the
// wording appears.
const conflictMarker = "is already being updated"

// NotFoundError reports that a requested resource does not exist in the
// control plane. Delete paths rely on this classification to implement
// idempotent deletion (absent resource = success).
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "domain", "user profile", "lifecycle config").
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found.
	ResourceName string

	// Message provides a custom error message if the default format is insufficient.
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a new NotFoundError with the specified resource
// type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// ConflictError reports that a mutation was rejected because the target
// resource is already being updated. The control plane serializes mutations
// per resource and surfaces this transient condition instead of queuing.
type ConflictError struct {
	// ResourceType categorizes the type of resource under mutation.
	ResourceType string

	// ResourceName is the specific identifier of the busy resource.
	ResourceName string
}

// Error implements the error interface for ConflictError. The message embeds
// the provider's conflict wording so that string-matching callers outside
// this process classify it the same way.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s %s", e.ResourceType, e.ResourceName, conflictMarker)
}

// NewConflictError creates a new ConflictError for the given resource.
func NewConflictError(resourceType, resourceName string) *ConflictError {
	return &ConflictError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// IsConflict reports whether err represents an "already being updated"
// rejection, either as a typed *ConflictError or as a raw provider error
// carrying the conflict wording in its message.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return true
	}
	return strings.Contains(err.Error(), conflictMarker)
}
