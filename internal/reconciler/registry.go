// Package reconciler implements the custom-resource handlers that drive the
// notebook environment: the domain, lifecycle config script, user profile,
// and user content bootstrap resources. Each handler converts one lifecycle
// event into the external API calls needed to reach the desired state, and
// the Registry dispatches incoming events to the right handler.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"studioprov/internal/content"
	"studioprov/internal/controlplane"
	"studioprov/internal/envelope"
	"studioprov/internal/projects"
	"studioprov/internal/waiter"
	"studioprov/pkg/logging"
)

// Resource type tags carried on incoming events.
const (
	ResourceTypeDomain          = "Custom::StudioDomain"
	ResourceTypeLifecycleConfig = "Custom::StudioLifecycleConfig"
	ResourceTypeUserProfile     = "Custom::StudioUserProfile"
	ResourceTypeUserSetup       = "Custom::StudioUserSetup"
)

// Handler is one custom-resource reconciler. Create receives events without
// a physical id and assigns one; Update and Delete receive the id assigned
// at creation and must echo it back unchanged.
type Handler interface {
	ResourceType() string

	// Schema validates resource properties before the typed parser runs.
	// May be nil when the handler does its own validation only.
	Schema() *envelope.Schema

	Create(ctx context.Context, event *envelope.Event) (*envelope.Response, error)
	Update(ctx context.Context, event *envelope.Event) (*envelope.Response, error)
	Delete(ctx context.Context, event *envelope.Event) (*envelope.Response, error)
}

// Failure wraps an error with the physical resource id that was already
// established when the failure happened. A failed Create must still report
// the id of anything it created, so a compensating Delete can clean up
// instead of orphaning the resource.
type Failure struct {
	PhysicalResourceID string
	Err                error
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// failWith tags err with the given physical id, unless err already carries
// one from deeper in the call chain.
func failWith(physicalID string, err error) error {
	var failure *Failure
	if errors.As(err, &failure) {
		return err
	}
	return &Failure{PhysicalResourceID: physicalID, Err: err}
}

// Failed renders err as the failure response for event, preferring a
// physical id attached to the error over the one the event arrived with.
func Failed(event *envelope.Event, err error) *envelope.FailureResponse {
	response := &envelope.FailureResponse{
		PhysicalResourceID: event.PhysicalResourceID,
		Error:              err.Error(),
	}
	var failure *Failure
	if errors.As(err, &failure) && failure.PhysicalResourceID != "" {
		response.PhysicalResourceID = failure.PhysicalResourceID
	}
	return response
}

// Registry maps resource types to their handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry over the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	registry := &Registry{handlers: map[string]Handler{}}
	for _, handler := range handlers {
		registry.Register(handler)
	}
	return registry
}

// Register adds a handler, replacing any previous one for the same type.
func (r *Registry) Register(handler Handler) {
	r.handlers[handler.ResourceType()] = handler
}

// DefaultRegistry wires the four reconcilers over the given control plane
// clients. mountRoot is the user-storage mount point for content bootstrap.
func DefaultRegistry(
	client controlplane.Client,
	network controlplane.Network,
	catalog controlplane.Catalog,
	store controlplane.ObjectStore,
	mountRoot string,
	wait waiter.Config,
) *Registry {
	loader := content.NewLoader(store, mountRoot)
	enabler := projects.NewEnabler(client, catalog)
	return NewRegistry(
		NewDomainReconciler(client, network, wait),
		NewLifecycleConfigReconciler(client, wait),
		NewUserProfileReconciler(client, wait),
		NewUserSetupReconciler(loader, enabler),
	)
}

// Dispatch routes one event to its handler. A handler panic is recovered
// into an ordinary error so the transport can still send a well-formed
// failure response; an unreported failure would leave the caller waiting out
// its timeout.
func (r *Registry) Dispatch(ctx context.Context, event *envelope.Event) (response *envelope.Response, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logging.Error("Registry", nil, "Recovered panic handling %s %s: %v",
				event.RequestType, event.ResourceType, recovered)
			response = nil
			err = failWith(event.PhysicalResourceID, fmt.Errorf("internal error: %v", recovered))
		}
	}()

	handler, ok := r.handlers[event.ResourceType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for resource type %q", event.ResourceType)
	}
	logging.Info("Registry", "Dispatching %s for %s (physical id %q)",
		event.RequestType, event.ResourceType, event.PhysicalResourceID)

	// Deletes stay dispatchable even with odd properties so cleanup is
	// never blocked; creates and updates are validated up front.
	if event.RequestType != envelope.RequestDelete {
		if schema := handler.Schema(); schema != nil {
			if err := schema.Validate(event.ResourceProperties); err != nil {
				return nil, err
			}
		}
	}

	switch event.RequestType {
	case envelope.RequestCreate:
		response, err = handler.Create(ctx, event)
	case envelope.RequestUpdate:
		response, err = handler.Update(ctx, event)
	case envelope.RequestDelete:
		response, err = handler.Delete(ctx, event)
	default:
		return nil, fmt.Errorf("unsupported RequestType %q", string(event.RequestType))
	}
	if err != nil {
		return nil, failWith(event.PhysicalResourceID, err)
	}
	return response, nil
}
