package vpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioprov/internal/controlplane"
	"studioprov/internal/controlplane/fake"
)

func TestResolveVPCExplicitWins(t *testing.T) {
	resolver := NewResolver(fake.New())
	got, err := resolver.ResolveVPC(context.Background(), "vpc-given")
	require.NoError(t, err)
	assert.Equal(t, "vpc-given", got)
}

func TestResolveVPCSingleDefault(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{
		{ID: "vpc-1", CIDR: "10.0.0.0/16"},
		{ID: "vpc-2", CIDR: "172.31.0.0/16", IsDefault: true},
	}
	resolver := NewResolver(cp)

	got, err := resolver.ResolveVPC(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "vpc-2", got)
}

func TestResolveVPCSingleNonDefaultUsable(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{{ID: "vpc-only", CIDR: "10.0.0.0/16"}}
	resolver := NewResolver(cp)

	got, err := resolver.ResolveVPC(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "vpc-only", got)
}

func TestResolveVPCAmbiguous(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{
		{ID: "vpc-1", CIDR: "10.0.0.0/16"},
		{ID: "vpc-2", CIDR: "10.1.0.0/16"},
	}
	resolver := NewResolver(cp)

	_, err := resolver.ResolveVPC(context.Background(), "")
	assert.Error(t, err)
}

func TestResolveVPCNoneExists(t *testing.T) {
	resolver := NewResolver(fake.New())
	_, err := resolver.ResolveVPC(context.Background(), "")
	assert.Error(t, err)
}

func TestResolveSubnetsPrefersDefaultForAZ(t *testing.T) {
	cp := fake.New()
	cp.Subnets = []controlplane.Subnet{
		{ID: "subnet-1", VPCID: "vpc-1", DefaultForAZ: true},
		{ID: "subnet-2", VPCID: "vpc-1"},
		{ID: "subnet-3", VPCID: "vpc-1", DefaultForAZ: true},
		{ID: "subnet-4", VPCID: "vpc-1"},
	}
	resolver := NewResolver(cp)

	got, err := resolver.ResolveSubnets(context.Background(), "vpc-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"subnet-1", "subnet-3"}, got)
}

func TestResolveSubnetsFallsBackToAll(t *testing.T) {
	cp := fake.New()
	cp.Subnets = []controlplane.Subnet{
		{ID: "subnet-1", VPCID: "vpc-1"},
		{ID: "subnet-2", VPCID: "vpc-1"},
	}
	resolver := NewResolver(cp)

	got, err := resolver.ResolveSubnets(context.Background(), "vpc-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"subnet-1", "subnet-2"}, got)
}

func TestResolveSubnetsExplicitWins(t *testing.T) {
	resolver := NewResolver(fake.New())
	got, err := resolver.ResolveSubnets(context.Background(), "vpc-1", []string{"subnet-9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"subnet-9"}, got)
}

func TestFileSystemSecurityGroups(t *testing.T) {
	cp := fake.New()
	cp.SecurityGroups = []controlplane.SecurityGroup{
		{ID: "sg-default", Name: "default", VPCID: "vpc-1"},
		{ID: "sg-in", Name: "security-group-for-inbound-nfs-d-123", VPCID: "vpc-1"},
		{ID: "sg-out", Name: "security-group-for-outbound-nfs-d-123", VPCID: "vpc-1"},
	}
	resolver := NewResolver(cp)

	inbound, outbound, err := resolver.FileSystemSecurityGroups(context.Background(), "d-123", "vpc-1")
	require.NoError(t, err)
	assert.Equal(t, "sg-in", inbound)
	assert.Equal(t, "sg-out", outbound)
}

func TestFileSystemSecurityGroupsMissing(t *testing.T) {
	resolver := NewResolver(fake.New())
	_, _, err := resolver.FileSystemSecurityGroups(context.Background(), "d-123", "vpc-1")
	assert.Error(t, err)
}

func TestProposeSubnetCIDRSkipsTakenBlocks(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{{ID: "vpc-1", CIDR: "172.31.0.0/16", IsDefault: true}}
	cp.Subnets = []controlplane.Subnet{
		{ID: "subnet-1", VPCID: "vpc-1", CIDR: "172.31.0.0/20"},
		{ID: "subnet-2", VPCID: "vpc-1", CIDR: "172.31.16.0/20"},
	}
	resolver := NewResolver(cp)

	got, err := resolver.ProposeSubnetCIDR(context.Background(), "vpc-1")
	require.NoError(t, err)
	assert.Equal(t, "172.31.32.0/24", got)
}

func TestProposeSubnetCIDRNoSpace(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{{ID: "vpc-1", CIDR: "10.0.0.0/24"}}
	cp.Subnets = []controlplane.Subnet{
		{ID: "subnet-1", VPCID: "vpc-1", CIDR: "10.0.0.0/24"},
	}
	resolver := NewResolver(cp)

	_, err := resolver.ProposeSubnetCIDR(context.Background(), "vpc-1")
	assert.Error(t, err)
}

func TestProposeSubnetCIDRVPCTooSmall(t *testing.T) {
	cp := fake.New()
	cp.VPCs = []controlplane.VPC{{ID: "vpc-1", CIDR: "10.0.0.0/26"}}
	resolver := NewResolver(cp)

	_, err := resolver.ProposeSubnetCIDR(context.Background(), "vpc-1")
	assert.Error(t, err)
}
