package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioprov/internal/controlplane"
	"studioprov/internal/controlplane/fake"
	"studioprov/internal/envelope"
)

func seedNetwork(cp *fake.ControlPlane) {
	cp.VPCs = []controlplane.VPC{
		{ID: "vpc-1", CIDR: "172.31.0.0/16", IsDefault: true},
	}
	cp.Subnets = []controlplane.Subnet{
		{ID: "subnet-1", VPCID: "vpc-1", CIDR: "172.31.0.0/20", DefaultForAZ: true},
		{ID: "subnet-2", VPCID: "vpc-1", CIDR: "172.31.16.0/20"},
		{ID: "subnet-3", VPCID: "vpc-1", CIDR: "172.31.32.0/20", DefaultForAZ: true},
		{ID: "subnet-4", VPCID: "vpc-1", CIDR: "172.31.48.0/20"},
	}
	// The fake assigns d-00000001 to the first created domain.
	cp.SecurityGroups = []controlplane.SecurityGroup{
		{ID: "sg-default", Name: "default", VPCID: "vpc-1"},
		{ID: "sg-in", Name: "security-group-for-inbound-nfs-d-00000001", VPCID: "vpc-1"},
		{ID: "sg-out", Name: "security-group-for-outbound-nfs-d-00000001", VPCID: "vpc-1"},
	}
}

func TestDomainCreateResolvesDefaultNetwork(t *testing.T) {
	cp := fake.New()
	seedNetwork(cp)
	cp.DomainCreateStatuses = []string{controlplane.StatusPending}
	r := NewDomainReconciler(cp, cp, testWait())

	response, err := r.Create(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestCreate,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{"DomainName": "workshop"},
	})
	require.NoError(t, err)

	assert.Equal(t, "d-00000001", response.PhysicalResourceID)
	assert.Equal(t, "d-00000001", response.Data["DomainId"])
	assert.Equal(t, "workshop", response.Data["DomainName"])
	assert.Equal(t, "subnet-1,subnet-3", response.Data["SubnetIds"], "default-for-AZ subnets win")
	assert.Equal(t, "vpc-1", response.Data["VpcId"])
	assert.Equal(t, "sg-in", response.Data["InboundEFSSecurityGroupId"])
	assert.Equal(t, "sg-out", response.Data["OutboundEFSSecurityGroupId"])
	assert.NotContains(t, response.Data, "ProposedAdminSubnetCidr")

	require.Len(t, cp.CreateDomainCalls, 1)
	created := cp.CreateDomainCalls[0]
	assert.Equal(t, controlplane.AuthModeIAM, created.AuthMode)
	assert.Equal(t, controlplane.NetworkAccessPublicInternet, created.AppNetworkAccessType)
	assert.Equal(t, []string{"subnet-1", "subnet-3"}, created.SubnetIDs)

	assert.True(t, cp.ProjectsEnabled, "EnableProjects defaults to true")
}

func TestDomainCreateProposesAdminSubnet(t *testing.T) {
	cp := fake.New()
	seedNetwork(cp)
	r := NewDomainReconciler(cp, cp, testWait())

	response, err := r.Create(context.Background(), &envelope.Event{
		RequestType:  envelope.RequestCreate,
		ResourceType: ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":         "workshop",
			"ProposeAdminSubnet": true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "172.31.64.0/24", response.Data["ProposedAdminSubnetCidr"])
}

func TestDomainCreatePartialFailureCarriesPhysicalID(t *testing.T) {
	cp := fake.New()
	seedNetwork(cp)
	cp.ListSecurityGroupsErr = errors.New("throttled")
	r := NewDomainReconciler(cp, cp, testWait())

	_, err := r.Create(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestCreate,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{"DomainName": "workshop"},
	})
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "d-00000001", failure.PhysicalResourceID,
		"failure after a successful create must report the new domain id")
}

func TestDomainCreateFailedStatus(t *testing.T) {
	cp := fake.New()
	seedNetwork(cp)
	cp.FailNextDomainCreate = true
	r := NewDomainReconciler(cp, cp, testWait())

	_, err := r.Create(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestCreate,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{"DomainName": "workshop"},
	})
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "d-00000001", failure.PhysicalResourceID)
	assert.Contains(t, err.Error(), "d-00000001")
}

func TestDomainCreateMirrorsExecutionRole(t *testing.T) {
	props, err := parseDomainProperties(map[string]any{
		"DomainName": "workshop",
		"DefaultUserSettings": map[string]any{
			"ExecutionRole": "arn:aws:iam::000000000000:role/studio",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::000000000000:role/studio", props.defaultSpaceSettings.ExecutionRole)

	props, err = parseDomainProperties(map[string]any{
		"DomainName": "workshop",
		"DefaultSpaceSettings": map[string]any{
			"ExecutionRole": "arn:aws:iam::000000000000:role/spaces",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::000000000000:role/spaces", props.defaultUserSettings.ExecutionRole)
}

func TestDomainUpdateDiffMinimality(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewDomainReconciler(cp, cp, testWait())

	response, err := r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"DomainSettings": map[string]any{"A": 1, "B": 3, "C": 4},
		},
		OldResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"DomainSettings": map[string]any{"A": 1, "B": 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domainID, response.PhysicalResourceID)

	require.Len(t, cp.UpdateDomainCalls, 1)
	assert.Equal(t, map[string]any{"B": 3, "C": 4}, cp.UpdateDomainCalls[0].DomainSettingsForUpdate,
		"only changed keys may be sent")
}

func TestDomainSettingsDiffRenamesUpdateOnlyKey(t *testing.T) {
	diff := domainSettingsDiff(
		map[string]any{"RStudioServerProDomainSettings": map[string]any{"X": 1}},
		map[string]any{"RStudioServerProDomainSettings": map[string]any{"X": 2}},
	)
	assert.Equal(t, map[string]any{
		"RStudioServerProDomainSettingsForUpdate": map[string]any{"X": 1},
	}, diff)
}

func TestDomainUpdateNetworkModeOnlyWhenChanged(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewDomainReconciler(cp, cp, testWait())

	_, err := r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":       "workshop",
			"UseVpcNetworking": false,
			"EnableProjects":   false,
		},
		OldResourceProperties: map[string]any{
			"DomainName":       "workshop",
			"UseVpcNetworking": false,
			"EnableProjects":   false,
		},
	})
	require.NoError(t, err)
	require.Len(t, cp.UpdateDomainCalls, 1)
	assert.Empty(t, cp.UpdateDomainCalls[0].AppNetworkAccessType, "unchanged mode is not re-sent")

	_, err = r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":       "workshop",
			"UseVpcNetworking": true,
			"EnableProjects":   false,
		},
		OldResourceProperties: map[string]any{
			"DomainName":       "workshop",
			"UseVpcNetworking": false,
			"EnableProjects":   false,
		},
	})
	require.NoError(t, err)
	require.Len(t, cp.UpdateDomainCalls, 2)
	assert.Equal(t, controlplane.NetworkAccessVPCOnly, cp.UpdateDomainCalls[1].AppNetworkAccessType)
}

func TestDomainUpdateRetriesOnConflict(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	cp.DomainUpdateConflicts = 2
	r := NewDomainReconciler(cp, cp, testWait())

	_, err := r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"EnableProjects": false,
		},
	})
	require.NoError(t, err)
	assert.Len(t, cp.UpdateDomainCalls, 1, "conflicted attempts are retried until accepted")
}

func TestDomainUpdateEnablesProjectsOnTurnOn(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewDomainReconciler(cp, cp, testWait())

	_, err := r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"EnableProjects": true,
		},
		OldResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"EnableProjects": true,
		},
	})
	require.NoError(t, err)
	assert.False(t, cp.ProjectsEnabled, "already-on projects are not re-enabled")

	_, err = r.Update(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestUpdate,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
		ResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"EnableProjects": true,
		},
		OldResourceProperties: map[string]any{
			"DomainName":     "workshop",
			"EnableProjects": false,
		},
	})
	require.NoError(t, err)
	assert.True(t, cp.ProjectsEnabled, "false to true turn-on triggers enablement")
}

func TestDomainDeleteNotFoundIsSuccess(t *testing.T) {
	cp := fake.New()
	r := NewDomainReconciler(cp, cp, testWait())

	response, err := r.Delete(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestDelete,
		PhysicalResourceID: "d-gone",
		ResourceType:       ResourceTypeDomain,
	})
	require.NoError(t, err)
	assert.Equal(t, "d-gone", response.PhysicalResourceID)
}

func TestDomainDelete(t *testing.T) {
	cp := fake.New()
	domainID := seedDomain(t, cp)
	r := NewDomainReconciler(cp, cp, testWait())

	response, err := r.Delete(context.Background(), &envelope.Event{
		RequestType:        envelope.RequestDelete,
		PhysicalResourceID: domainID,
		ResourceType:       ResourceTypeDomain,
	})
	require.NoError(t, err)
	assert.Equal(t, domainID, response.PhysicalResourceID)
	assert.NotContains(t, cp.Domains, domainID)
}
