// Package fake provides an in-memory control plane for tests. It implements
// every interface in the controlplane package with synchronous state
// transitions plus hooks for injecting conflicts, failure statuses, and
// slow (multi-poll) provisioning.
package fake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"studioprov/internal/controlplane"
)

// LifecycleConfig is the fake's record of a created script resource.
type LifecycleConfig struct {
	Name    string
	ARN     string
	Content string
	AppType string
	Tags    []controlplane.Tag
}

// Object is a stored object served by the fake object store.
type Object struct {
	ContentType string
	Data        []byte
}

// ControlPlane is a stateful fake implementing controlplane.Client,
// controlplane.Network, controlplane.Catalog, and controlplane.ObjectStore.
// The zero value is usable; all fields are safe to seed before use.
type ControlPlane struct {
	mu sync.Mutex

	Domains          map[string]*controlplane.DomainDescription
	Profiles         map[string]*controlplane.UserProfileDescription
	LifecycleConfigs map[string]*LifecycleConfig

	VPCs           []controlplane.VPC
	Subnets        []controlplane.Subnet
	SecurityGroups []controlplane.SecurityGroup

	Portfolios            []controlplane.Portfolio
	PortfolioAssociations map[string][]string
	ProjectsEnabled       bool

	Objects map[string]Object

	// DomainCreateStatuses queues statuses returned by successive
	// DescribeDomain calls after a create, before the domain settles
	// InService. Seed e.g. {"Pending", "Pending"} to require three polls.
	DomainCreateStatuses []string

	// ProfileCreateStatuses is the user-profile equivalent of
	// DomainCreateStatuses.
	ProfileCreateStatuses []string

	// DomainUpdateConflicts rejects that many UpdateDomain calls with a
	// conflict error before letting one through.
	DomainUpdateConflicts int

	// FailNextDomainCreate makes the next created domain surface a Failed
	// status on describe instead of settling InService.
	FailNextDomainCreate bool

	// ListSecurityGroupsErr, when set, is returned by ListSecurityGroups.
	// Used to exercise post-create failure paths.
	ListSecurityGroupsErr error

	// CreateDomainCalls records every CreateDomain input.
	CreateDomainCalls []controlplane.CreateDomainInput

	// UpdateDomainCalls records every accepted (non-conflicted) update.
	UpdateDomainCalls []controlplane.UpdateDomainInput

	// DeletedLifecycleConfigs records names passed to DeleteLifecycleConfig,
	// including calls that returned not-found.
	DeletedLifecycleConfigs []string

	nextDomain   int
	nextLCC      int
	nextUID      int
	domainPolls  map[string]int
	profilePolls map[string]int
}

var _ controlplane.Client = (*ControlPlane)(nil)
var _ controlplane.Network = (*ControlPlane)(nil)
var _ controlplane.Catalog = (*ControlPlane)(nil)
var _ controlplane.ObjectStore = (*ControlPlane)(nil)

// New returns an empty fake control plane.
func New() *ControlPlane {
	return &ControlPlane{
		Domains:               map[string]*controlplane.DomainDescription{},
		Profiles:              map[string]*controlplane.UserProfileDescription{},
		LifecycleConfigs:      map[string]*LifecycleConfig{},
		PortfolioAssociations: map[string][]string{},
		Objects:               map[string]Object{},
		domainPolls:           map[string]int{},
		profilePolls:          map[string]int{},
	}
}

func profileKey(domainID, name string) string {
	return domainID + "/" + name
}

// CreateDomain provisions a new domain record. The returned domain is
// immediately describable but reports in-progress statuses until the seeded
// status queue drains.
func (f *ControlPlane) CreateDomain(ctx context.Context, in controlplane.CreateDomainInput) (controlplane.CreateDomainOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateDomainCalls = append(f.CreateDomainCalls, in)
	f.nextDomain++
	domainID := fmt.Sprintf("d-%08d", f.nextDomain)
	arn := fmt.Sprintf("arn:aws:sagemaker:test:000000000000:domain/%s", domainID)

	desc := &controlplane.DomainDescription{
		DomainID:             domainID,
		DomainName:           in.DomainName,
		DomainARN:            arn,
		Status:               controlplane.StatusPending,
		HomeEfsFileSystemID:  fmt.Sprintf("fs-%08d", f.nextDomain),
		SubnetIDs:            append([]string(nil), in.SubnetIDs...),
		URL:                  fmt.Sprintf("https://%s.studio.test", domainID),
		VPCID:                in.VPCID,
		AppNetworkAccessType: in.AppNetworkAccessType,
		DefaultUserSettings:  in.DefaultUserSettings.Clone(),
		DefaultSpaceSettings: in.DefaultSpaceSettings.Clone(),
		DomainSettings:       in.DomainSettings,
	}
	f.Domains[domainID] = desc
	f.domainPolls[domainID] = len(f.DomainCreateStatuses)
	if f.FailNextDomainCreate {
		f.FailNextDomainCreate = false
		desc.Status = controlplane.StatusFailed
		f.domainPolls[domainID] = -1
	}
	return controlplane.CreateDomainOutput{DomainID: domainID, DomainARN: arn}, nil
}

func (f *ControlPlane) DescribeDomain(ctx context.Context, domainID string) (*controlplane.DomainDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	desc, ok := f.Domains[domainID]
	if !ok {
		return nil, controlplane.NewNotFoundError("domain", domainID)
	}
	if remaining := f.domainPolls[domainID]; remaining > 0 {
		desc.Status = f.DomainCreateStatuses[len(f.DomainCreateStatuses)-remaining]
		f.domainPolls[domainID] = remaining - 1
	} else if remaining == 0 {
		desc.Status = controlplane.StatusInService
	}
	out := *desc
	return &out, nil
}

func (f *ControlPlane) UpdateDomain(ctx context.Context, in controlplane.UpdateDomainInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	desc, ok := f.Domains[in.DomainID]
	if !ok {
		return controlplane.NewNotFoundError("domain", in.DomainID)
	}
	if f.DomainUpdateConflicts > 0 {
		f.DomainUpdateConflicts--
		return controlplane.NewConflictError("domain", in.DomainID)
	}
	if in.DefaultUserSettings != nil {
		desc.DefaultUserSettings = in.DefaultUserSettings.Clone()
	}
	if in.DefaultSpaceSettings != nil {
		desc.DefaultSpaceSettings = in.DefaultSpaceSettings.Clone()
	}
	if in.AppNetworkAccessType != "" {
		desc.AppNetworkAccessType = in.AppNetworkAccessType
	}
	if in.DomainSettingsForUpdate != nil {
		if desc.DomainSettings == nil {
			desc.DomainSettings = map[string]any{}
		}
		for key, value := range in.DomainSettingsForUpdate {
			desc.DomainSettings[key] = value
		}
	}
	f.UpdateDomainCalls = append(f.UpdateDomainCalls, in)
	return nil
}

func (f *ControlPlane) DeleteDomain(ctx context.Context, in controlplane.DeleteDomainInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Domains[in.DomainID]; !ok {
		return controlplane.NewNotFoundError("domain", in.DomainID)
	}
	delete(f.Domains, in.DomainID)
	return nil
}

func (f *ControlPlane) EnableProjectsPortfolio(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProjectsEnabled = true
	return nil
}

func (f *ControlPlane) CreateUserProfile(ctx context.Context, in controlplane.CreateUserProfileInput) (*controlplane.UserProfileDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Domains[in.DomainID]; !ok {
		return nil, controlplane.NewNotFoundError("domain", in.DomainID)
	}
	key := profileKey(in.DomainID, in.UserProfileName)
	f.nextUID++
	desc := &controlplane.UserProfileDescription{
		DomainID:             in.DomainID,
		UserProfileName:      in.UserProfileName,
		UserProfileARN:       fmt.Sprintf("arn:aws:sagemaker:test:000000000000:user-profile/%s/%s", in.DomainID, in.UserProfileName),
		Status:               controlplane.StatusPending,
		HomeEfsFileSystemUID: fmt.Sprintf("%d", 200000+f.nextUID),
		UserSettings:         in.UserSettings.Clone(),
	}
	f.Profiles[key] = desc
	f.profilePolls[key] = len(f.ProfileCreateStatuses)
	out := *desc
	return &out, nil
}

func (f *ControlPlane) DescribeUserProfile(ctx context.Context, domainID, userProfileName string) (*controlplane.UserProfileDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := profileKey(domainID, userProfileName)
	desc, ok := f.Profiles[key]
	if !ok {
		return nil, controlplane.NewNotFoundError("user profile", userProfileName)
	}
	if remaining := f.profilePolls[key]; remaining > 0 {
		desc.Status = f.ProfileCreateStatuses[len(f.ProfileCreateStatuses)-remaining]
		f.profilePolls[key] = remaining - 1
	} else if remaining == 0 {
		desc.Status = controlplane.StatusInService
	}
	out := *desc
	return &out, nil
}

func (f *ControlPlane) UpdateUserProfile(ctx context.Context, in controlplane.UpdateUserProfileInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	desc, ok := f.Profiles[profileKey(in.DomainID, in.UserProfileName)]
	if !ok {
		return controlplane.NewNotFoundError("user profile", in.UserProfileName)
	}
	desc.UserSettings = in.UserSettings.Clone()
	return nil
}

func (f *ControlPlane) DeleteUserProfile(ctx context.Context, domainID, userProfileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := profileKey(domainID, userProfileName)
	if _, ok := f.Profiles[key]; !ok {
		return controlplane.NewNotFoundError("user profile", userProfileName)
	}
	delete(f.Profiles, key)
	return nil
}

func (f *ControlPlane) CreateLifecycleConfig(ctx context.Context, in controlplane.CreateLifecycleConfigInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.LifecycleConfigs[in.Name]; exists {
		return "", fmt.Errorf("lifecycle config %s already exists", in.Name)
	}
	f.nextLCC++
	arn := fmt.Sprintf("arn:aws:sagemaker:test:000000000000:studio-lifecycle-config/%s", in.Name)
	f.LifecycleConfigs[in.Name] = &LifecycleConfig{
		Name:    in.Name,
		ARN:     arn,
		Content: in.Content,
		AppType: in.AppType,
		Tags:    append([]controlplane.Tag(nil), in.Tags...),
	}
	return arn, nil
}

func (f *ControlPlane) DeleteLifecycleConfig(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeletedLifecycleConfigs = append(f.DeletedLifecycleConfigs, name)
	if _, ok := f.LifecycleConfigs[name]; !ok {
		return controlplane.NewNotFoundError("lifecycle config", name)
	}
	delete(f.LifecycleConfigs, name)
	return nil
}

func (f *ControlPlane) ListVPCs(ctx context.Context) ([]controlplane.VPC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlplane.VPC(nil), f.VPCs...), nil
}

func (f *ControlPlane) ListSubnets(ctx context.Context, vpcID string) ([]controlplane.Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []controlplane.Subnet
	for _, subnet := range f.Subnets {
		if subnet.VPCID == vpcID {
			out = append(out, subnet)
		}
	}
	return out, nil
}

func (f *ControlPlane) ListSecurityGroups(ctx context.Context, vpcID string) ([]controlplane.SecurityGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListSecurityGroupsErr != nil {
		return nil, f.ListSecurityGroupsErr
	}
	var out []controlplane.SecurityGroup
	for _, group := range f.SecurityGroups {
		if group.VPCID == vpcID {
			out = append(out, group)
		}
	}
	return out, nil
}

func (f *ControlPlane) ListAcceptedPortfolioShares(ctx context.Context) ([]controlplane.Portfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlplane.Portfolio(nil), f.Portfolios...), nil
}

func (f *ControlPlane) AssociatePrincipalWithPortfolio(ctx context.Context, portfolioID, principalARN string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.PortfolioAssociations[portfolioID] {
		if existing == principalARN {
			return nil
		}
	}
	f.PortfolioAssociations[portfolioID] = append(f.PortfolioAssociations[portfolioID], principalARN)
	return nil
}

func (f *ControlPlane) DisassociatePrincipalFromPortfolio(ctx context.Context, portfolioID, principalARN string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.PortfolioAssociations[portfolioID][:0]
	for _, existing := range f.PortfolioAssociations[portfolioID] {
		if existing != principalARN {
			kept = append(kept, existing)
		}
	}
	f.PortfolioAssociations[portfolioID] = kept
	return nil
}

func (f *ControlPlane) HeadObject(ctx context.Context, uri string, authenticated bool) (*controlplane.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.Objects[uri]
	if !ok {
		return nil, controlplane.NewNotFoundError("object", uri)
	}
	return &controlplane.ObjectInfo{ContentType: obj.ContentType, Size: int64(len(obj.Data))}, nil
}

func (f *ControlPlane) Download(ctx context.Context, uri string, dest string, authenticated bool) error {
	f.mu.Lock()
	obj, ok := f.Objects[uri]
	f.mu.Unlock()
	if !ok {
		return controlplane.NewNotFoundError("object", uri)
	}
	return writeFile(dest, obj.Data)
}

func writeFile(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
