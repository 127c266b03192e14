// Package envelope parses the lifecycle events delivered to the reconciler
// entry points and renders their responses.
//
// Every invocation carries one event: a request kind (Create, Update or
// Delete), the stable physical resource id assigned at creation, a resource
// type tag, and the desired-state property map (plus, for updates, the prior
// property map). The wire shape follows the provisioning framework's custom
// resource contract.
package envelope

import (
	"encoding/json"
	"fmt"
)

// RequestType is the lifecycle operation requested for a resource.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Event is one parsed lifecycle event.
type Event struct {
	// RequestType is the lifecycle operation. Always one of the three
	// constants after Parse.
	RequestType RequestType `json:"RequestType"`

	// PhysicalResourceID is the stable identifier assigned at Create and
	// echoed on every subsequent event for the same resource instance.
	// Empty on Create; required for Update and Delete.
	PhysicalResourceID string `json:"PhysicalResourceId,omitempty"`

	// ResourceType tags which reconciler handles this event.
	ResourceType string `json:"ResourceType"`

	// ResourceProperties is the desired-state map.
	ResourceProperties map[string]any `json:"ResourceProperties,omitempty"`

	// OldResourceProperties is the prior desired-state map, present on
	// Update events only.
	OldResourceProperties map[string]any `json:"OldResourceProperties,omitempty"`

	// RequestID correlates log lines and responses; assigned by the
	// transport when the event itself does not carry one.
	RequestID string `json:"RequestId,omitempty"`
}

// Response is the success payload of a reconciler invocation. Data keys
// become available to dependent resources.
type Response struct {
	PhysicalResourceID string            `json:"PhysicalResourceId"`
	Data               map[string]string `json:"Data,omitempty"`
}

// FailureResponse is the failure payload. It still carries the last known
// physical id (when one was established) so dependent cleanup can proceed.
type FailureResponse struct {
	PhysicalResourceID string `json:"PhysicalResourceId,omitempty"`
	Error              string `json:"Error"`
}

// Parse decodes and validates a raw lifecycle event.
func Parse(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// Validate checks the structural invariants of an event.
func (e *Event) Validate() error {
	switch e.RequestType {
	case RequestCreate, RequestUpdate, RequestDelete:
	default:
		return fmt.Errorf("unsupported RequestType %q", string(e.RequestType))
	}
	if e.ResourceType == "" {
		return fmt.Errorf("event has no ResourceType")
	}
	if e.RequestType != RequestCreate && e.PhysicalResourceID == "" {
		return fmt.Errorf("%s event has no PhysicalResourceId", e.RequestType)
	}
	return nil
}
