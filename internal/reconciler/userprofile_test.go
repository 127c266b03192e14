package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioprov/internal/controlplane"
	"studioprov/internal/controlplane/fake"
	"studioprov/internal/envelope"
)

func TestUserProfileCreate(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	cp.ProfileCreateStatuses = []string{controlplane.StatusPending, controlplane.StatusPending}
	r := NewUserProfileReconciler(cp, testWait())

	response, err := r.Create(context.Background(), &envelope.Event{
		RequestType:  envelope.RequestCreate,
		ResourceType: ResourceTypeUserProfile,
		ResourceProperties: map[string]any{
			"DomainId":        domainID,
			"UserProfileName": "alice",
			"UserSettings": map[string]any{
				"ExecutionRole": "arn:aws:iam::000000000000:role/studio-user",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", response.PhysicalResourceID, "physical id is the profile name")
	assert.Equal(t, "alice", response.Data["UserProfileName"])
	assert.Equal(t, "200001", response.Data["HomeEfsFileSystemUid"])
}

func TestUserProfileCreateFailedStatus(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	cp.ProfileCreateStatuses = []string{controlplane.StatusFailed}
	r := NewUserProfileReconciler(cp, testWait())

	_, err := r.Create(context.Background(), &envelope.Event{
		RequestType:  envelope.RequestCreate,
		ResourceType: ResourceTypeUserProfile,
		ResourceProperties: map[string]any{
			"DomainId":        domainID,
			"UserProfileName": "alice",
		},
	})
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "alice", failure.PhysicalResourceID)
	assert.Contains(t, err.Error(), "alice")
}

func TestUserProfileUpdate(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewUserProfileReconciler(cp, testWait())

	_, err := cp.CreateUserProfile(context.Background(), controlplane.CreateUserProfileInput{
		DomainID:        domainID,
		UserProfileName: "alice",
	})
	require.NoError(t, err)

	response, err := r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: "alice",
		ResourceType:       ResourceTypeUserProfile,
		ResourceProperties: map[string]any{
			"DomainId":        domainID,
			"UserProfileName": "alice",
			"UserSettings": map[string]any{
				"ExecutionRole": "arn:aws:iam::000000000000:role/replacement",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", response.PhysicalResourceID)

	desc, err := cp.DescribeUserProfile(context.Background(), domainID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::000000000000:role/replacement", desc.UserSettings.ExecutionRole)
}

func TestUserProfileDelete(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewUserProfileReconciler(cp, testWait())

	_, err := cp.CreateUserProfile(context.Background(), controlplane.CreateUserProfileInput{
		DomainID:        domainID,
		UserProfileName: "alice",
	})
	require.NoError(t, err)

	response, err := r.Delete(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestDelete,
		PhysicalResourceID: "alice",
		ResourceType:       ResourceTypeUserProfile,
		ResourceProperties: map[string]any{
			"DomainId":        domainID,
			"UserProfileName": "alice",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", response.PhysicalResourceID)

	_, err = cp.DescribeUserProfile(context.Background(), domainID, "alice")
	assert.True(t, controlplane.IsNotFound(err))
}

func TestUserProfileDeleteNotFoundIsSuccess(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewUserProfileReconciler(cp, testWait())

	response, err := r.Delete(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestDelete,
		PhysicalResourceID: "ghost",
		ResourceType:       ResourceTypeUserProfile,
		ResourceProperties: map[string]any{
			"DomainId":        domainID,
			"UserProfileName": "ghost",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ghost", response.PhysicalResourceID)
}
