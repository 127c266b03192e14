package reconciler

import (
	"context"
	"fmt"
	"strings"

	"studioprov/internal/controlplane"
	"studioprov/internal/envelope"
	"studioprov/internal/waiter"
	"studioprov/pkg/logging"
)

const profileSubsystem = "UserProfileReconciler"

var userProfileSchema = envelope.MustCompileSchema("studio-user-profile.json", `{
	"type": "object",
	"required": ["DomainId", "UserProfileName"],
	"properties": {
		"DomainId": {"type": "string", "minLength": 1},
		"UserProfileName": {"type": "string", "minLength": 1},
		"UserSettings": {"type": "object"}
	}
}`)

// UserProfileReconciler manages per-user profiles scoped to a domain. The
// profile name is the physical id; a domain id change is a replacement the
// caller must orchestrate, not something this reconciler handles.
type UserProfileReconciler struct {
	client controlplane.Client
	wait   waiter.Config
}

// NewUserProfileReconciler creates a UserProfileReconciler.
func NewUserProfileReconciler(client controlplane.Client, wait waiter.Config) *UserProfileReconciler {
	return &UserProfileReconciler{client: client, wait: wait}
}

func (r *UserProfileReconciler) ResourceType() string { return ResourceTypeUserProfile }

func (r *UserProfileReconciler) Schema() *envelope.Schema { return userProfileSchema }

type userProfileProperties struct {
	domainID string
	name     string
	settings controlplane.UserSettings
}

func parseUserProfileProperties(props map[string]any) (*userProfileProperties, error) {
	domainID, err := envelope.String(props, "DomainId")
	if err != nil {
		return nil, err
	}
	name, err := envelope.String(props, "UserProfileName")
	if err != nil {
		return nil, err
	}
	settingsRaw, err := envelope.OptionalMap(props, "UserSettings")
	if err != nil {
		return nil, err
	}
	return &userProfileProperties{
		domainID: domainID,
		name:     name,
		settings: controlplane.UserSettingsFromMap(settingsRaw),
	}, nil
}

// Create provisions the profile and waits for it to come in service. The
// storage uid allocated for the user is exposed to dependents.
func (r *UserProfileReconciler) Create(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseUserProfileProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	logging.Info(profileSubsystem, "Creating user profile %s on domain %s", props.name, props.domainID)
	_, err = r.client.CreateUserProfile(ctx, controlplane.CreateUserProfileInput{
		DomainID:        props.domainID,
		UserProfileName: props.name,
		UserSettings:    props.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("creating user profile %s: %w", props.name, err)
	}

	desc, err := r.pollInService(ctx, props.domainID, props.name)
	if err != nil {
		return nil, failWith(props.name, err)
	}
	logging.Info(profileSubsystem, "User profile %s is in service (uid %s)", props.name, desc.HomeEfsFileSystemUID)
	return &envelope.Response{
		PhysicalResourceID: props.name,
		Data: map[string]string{
			"UserProfileName":      desc.UserProfileName,
			"HomeEfsFileSystemUid": desc.HomeEfsFileSystemUID,
		},
	}, nil
}

// Update replaces the profile's settings in place and waits for the profile
// to settle back in service.
func (r *UserProfileReconciler) Update(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseUserProfileProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	name := event.PhysicalResourceID
	logging.Info(profileSubsystem, "Updating user profile %s on domain %s", name, props.domainID)
	err = r.client.UpdateUserProfile(ctx, controlplane.UpdateUserProfileInput{
		DomainID:        props.domainID,
		UserProfileName: name,
		UserSettings:    props.settings,
	})
	if err != nil {
		return nil, failWith(name, fmt.Errorf("updating user profile %s: %w", name, err))
	}
	if _, err := r.pollInService(ctx, props.domainID, name); err != nil {
		return nil, failWith(name, err)
	}
	return &envelope.Response{PhysicalResourceID: name}, nil
}

// Delete removes the profile. Absence of the resource, not a status value,
// signals completion: the poll succeeds once describe reports not-found, and
// rejects statuses showing the deletion failed or stalled.
func (r *UserProfileReconciler) Delete(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	name := event.PhysicalResourceID
	domainID, err := envelope.String(event.ResourceProperties, "DomainId")
	if err != nil {
		return nil, failWith(name, err)
	}

	if _, err := r.client.DescribeUserProfile(ctx, domainID, name); err != nil {
		if controlplane.IsNotFound(err) {
			logging.Info(profileSubsystem, "User profile %s not found - treating delete as success", name)
			return &envelope.Response{PhysicalResourceID: name}, nil
		}
		return nil, failWith(name, err)
	}

	logging.Info(profileSubsystem, "Deleting user profile %s from domain %s", name, domainID)
	if err := r.client.DeleteUserProfile(ctx, domainID, name); err != nil {
		return nil, failWith(name, fmt.Errorf("deleting user profile %s: %w", name, err))
	}
	err = waiter.PollUntilGone(ctx, r.wait, "user profile "+name,
		func(ctx context.Context) (string, error) {
			desc, err := r.client.DescribeUserProfile(ctx, domainID, name)
			if err != nil {
				return "", err
			}
			return desc.Status, nil
		},
		func(status string) error {
			if waiter.IsFailureStatus(status) {
				return fmt.Errorf("user profile %s entered status %s during deletion", name, status)
			}
			if !strings.Contains(strings.ToLower(status), "deleting") {
				return fmt.Errorf("user profile %s is no longer deleting but not deleted (status %s)", name, status)
			}
			return nil
		},
	)
	if err != nil {
		return nil, failWith(name, err)
	}
	return &envelope.Response{PhysicalResourceID: name}, nil
}

func (r *UserProfileReconciler) pollInService(ctx context.Context, domainID, name string) (*controlplane.UserProfileDescription, error) {
	return waiter.Poll(ctx, r.wait, "user profile "+name,
		func(ctx context.Context) (*controlplane.UserProfileDescription, error) {
			return r.client.DescribeUserProfile(ctx, domainID, name)
		},
		func(desc *controlplane.UserProfileDescription) string { return desc.Status },
		controlplane.StatusInService,
	)
}
