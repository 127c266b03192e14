package controlplane

import "context"

// Client is the notebook-service surface the reconcilers drive. Create and
// delete operations complete asynchronously: the call returns once the
// mutation is accepted and callers poll the describe operation until the
// resource reaches a terminal state (or stops existing).
//
// Describe operations return *NotFoundError once the resource is gone.
// Update operations return *ConflictError (or a raw error matching
// IsConflict) while another mutation is in flight on the same resource.
type Client interface {
	CreateDomain(ctx context.Context, in CreateDomainInput) (CreateDomainOutput, error)
	DescribeDomain(ctx context.Context, domainID string) (*DomainDescription, error)
	UpdateDomain(ctx context.Context, in UpdateDomainInput) error
	DeleteDomain(ctx context.Context, in DeleteDomainInput) error

	// EnableProjectsPortfolio turns on the account-wide project-template
	// integration. Idempotent.
	EnableProjectsPortfolio(ctx context.Context) error

	CreateUserProfile(ctx context.Context, in CreateUserProfileInput) (*UserProfileDescription, error)
	DescribeUserProfile(ctx context.Context, domainID, userProfileName string) (*UserProfileDescription, error)
	UpdateUserProfile(ctx context.Context, in UpdateUserProfileInput) error
	DeleteUserProfile(ctx context.Context, domainID, userProfileName string) error

	// CreateLifecycleConfig returns the ARN of the created script resource.
	CreateLifecycleConfig(ctx context.Context, in CreateLifecycleConfigInput) (string, error)
	DeleteLifecycleConfig(ctx context.Context, name string) error
}

// Network exposes the read-only network-fabric queries the domain reconciler
// needs for default resolution and security-group discovery.
type Network interface {
	ListVPCs(ctx context.Context) ([]VPC, error)
	ListSubnets(ctx context.Context, vpcID string) ([]Subnet, error)
	ListSecurityGroups(ctx context.Context, vpcID string) ([]SecurityGroup, error)
}

// Catalog exposes the project-template portfolio operations used to grant
// execution roles access to the shared templates.
type Catalog interface {
	ListAcceptedPortfolioShares(ctx context.Context) ([]Portfolio, error)
	AssociatePrincipalWithPortfolio(ctx context.Context, portfolioID, principalARN string) error
	DisassociatePrincipalFromPortfolio(ctx context.Context, portfolioID, principalARN string) error
}

// ObjectStore fetches user-content objects. Implementations decide how the
// authenticated flag maps to request signing; unauthenticated access suits
// public sample-data buckets.
type ObjectStore interface {
	// HeadObject probes a single object's metadata. Returns *NotFoundError
	// if no object exists at the URI (the URI may still be a valid prefix).
	HeadObject(ctx context.Context, uri string, authenticated bool) (*ObjectInfo, error)

	// Download fetches the object at uri into the local file at dest.
	Download(ctx context.Context, uri string, dest string, authenticated bool) error
}
