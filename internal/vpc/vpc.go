// Package vpc resolves network placement for notebook domains: default VPC
// and subnet discovery when none are configured, lookup of the security
// groups the notebook service creates for its file-system channel, and
// proposal of a free subnet CIDR for administrative workloads.
package vpc

import (
	"context"
	"fmt"
	"net/netip"

	"studioprov/internal/controlplane"
	"studioprov/pkg/logging"
)

const subsystem = "VPC"

// Security group names the notebook service assigns to the EFS channel of a
// domain. Lookup is by name prefix within the domain's VPC.
const (
	inboundNFSPrefix  = "security-group-for-inbound-nfs-"
	outboundNFSPrefix = "security-group-for-outbound-nfs-"
)

// proposedPrefixLen is the size of proposed administrative subnets.
const proposedPrefixLen = 24

// Resolver answers network questions against the fabric API.
type Resolver struct {
	network controlplane.Network
}

// NewResolver creates a Resolver over the given network API.
func NewResolver(network controlplane.Network) *Resolver {
	return &Resolver{network: network}
}

// ResolveVPC returns vpcID unchanged when set; otherwise it discovers the
// account default. Exactly one default VPC is required - except that a
// single non-default VPC is usable with a warning. Ambiguous or absent
// candidates are validation errors.
func (r *Resolver) ResolveVPC(ctx context.Context, vpcID string) (string, error) {
	if vpcID != "" {
		return vpcID, nil
	}
	vpcs, err := r.network.ListVPCs(ctx)
	if err != nil {
		return "", fmt.Errorf("listing VPCs: %w", err)
	}
	if len(vpcs) == 0 {
		return "", fmt.Errorf("no default VPC exists - cannot create notebook domain")
	}

	var defaults []controlplane.VPC
	for _, vpc := range vpcs {
		if vpc.IsDefault {
			defaults = append(defaults, vpc)
		}
	}
	switch {
	case len(defaults) == 1:
		return defaults[0].ID, nil
	case len(defaults) > 1:
		return "", fmt.Errorf("VpcId not specified, and multiple default VPCs found")
	case len(vpcs) == 1:
		logging.Warn(subsystem, "Found exactly one (non-default) VPC: using %s", vpcs[0].ID)
		return vpcs[0].ID, nil
	default:
		return "", fmt.Errorf("VpcId not specified, and multiple VPCs found with no default VPC")
	}
}

// ResolveSubnets returns subnetIDs unchanged when set; otherwise it prefers
// the VPC's default-for-availability-zone subnets, falling back to all
// subnets in the VPC.
func (r *Resolver) ResolveSubnets(ctx context.Context, vpcID string, subnetIDs []string) ([]string, error) {
	if len(subnetIDs) > 0 {
		return subnetIDs, nil
	}
	subnets, err := r.network.ListSubnets(ctx, vpcID)
	if err != nil {
		return nil, fmt.Errorf("listing subnets of %s: %w", vpcID, err)
	}
	if len(subnets) == 0 {
		return nil, fmt.Errorf("VPC %s has no subnets", vpcID)
	}

	var defaults []string
	var all []string
	for _, subnet := range subnets {
		all = append(all, subnet.ID)
		if subnet.DefaultForAZ {
			defaults = append(defaults, subnet.ID)
		}
	}
	if len(defaults) > 0 {
		return defaults, nil
	}
	return all, nil
}

// FileSystemSecurityGroups looks up the inbound and outbound security groups
// the notebook service created for the domain's file-system channel.
func (r *Resolver) FileSystemSecurityGroups(ctx context.Context, domainID, vpcID string) (inbound, outbound string, err error) {
	groups, err := r.network.ListSecurityGroups(ctx, vpcID)
	if err != nil {
		return "", "", fmt.Errorf("listing security groups of %s: %w", vpcID, err)
	}
	for _, group := range groups {
		switch group.Name {
		case inboundNFSPrefix + domainID:
			inbound = group.ID
		case outboundNFSPrefix + domainID:
			outbound = group.ID
		}
	}
	if inbound == "" || outbound == "" {
		return "", "", fmt.Errorf("file-system security groups for domain %s not found in %s", domainID, vpcID)
	}
	return inbound, outbound, nil
}

// ProposeSubnetCIDR finds a /24 block inside the VPC's address range that
// does not overlap any existing subnet, scanning from the bottom of the
// range upward.
func (r *Resolver) ProposeSubnetCIDR(ctx context.Context, vpcID string) (string, error) {
	vpcs, err := r.network.ListVPCs(ctx)
	if err != nil {
		return "", fmt.Errorf("listing VPCs: %w", err)
	}
	var vpcCIDR string
	for _, vpc := range vpcs {
		if vpc.ID == vpcID {
			vpcCIDR = vpc.CIDR
			break
		}
	}
	if vpcCIDR == "" {
		return "", fmt.Errorf("VPC %s not found", vpcID)
	}
	vpcPrefix, err := netip.ParsePrefix(vpcCIDR)
	if err != nil {
		return "", fmt.Errorf("VPC %s has unparseable CIDR %q: %w", vpcID, vpcCIDR, err)
	}
	if vpcPrefix.Bits() > proposedPrefixLen {
		return "", fmt.Errorf("VPC %s (%s) is too small to carve a /%d subnet", vpcID, vpcCIDR, proposedPrefixLen)
	}

	subnets, err := r.network.ListSubnets(ctx, vpcID)
	if err != nil {
		return "", fmt.Errorf("listing subnets of %s: %w", vpcID, err)
	}
	var taken []netip.Prefix
	for _, subnet := range subnets {
		prefix, err := netip.ParsePrefix(subnet.CIDR)
		if err != nil {
			return "", fmt.Errorf("subnet %s has unparseable CIDR %q: %w", subnet.ID, subnet.CIDR, err)
		}
		taken = append(taken, prefix)
	}

	for addr := vpcPrefix.Masked().Addr(); vpcPrefix.Contains(addr); addr = nextBlock(addr, proposedPrefixLen) {
		candidate := netip.PrefixFrom(addr, proposedPrefixLen)
		if !overlapsAny(candidate, taken) {
			return candidate.String(), nil
		}
	}
	return "", fmt.Errorf("no free /%d block left in VPC %s (%s)", proposedPrefixLen, vpcID, vpcCIDR)
}

func overlapsAny(candidate netip.Prefix, taken []netip.Prefix) bool {
	for _, prefix := range taken {
		if candidate.Overlaps(prefix) {
			return true
		}
	}
	return false
}

// nextBlock advances addr to the start of the next block of the given
// prefix length.
func nextBlock(addr netip.Addr, prefixLen int) netip.Addr {
	bytes := addr.As4()
	step := uint32(1) << (32 - prefixLen)
	value := uint32(bytes[0])<<24 | uint32(bytes[1])<<16 | uint32(bytes[2])<<8 | uint32(bytes[3])
	value += step
	return netip.AddrFrom4([4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)})
}
