package controlplane

// Resource status values reported by the notebook service. Status strings
// outside this set occur (the service adds in-progress variants over time);
// reconcilers treat any status containing a case-insensitive "fail" marker
// as terminal failure.
const (
	StatusPending   = "Pending"
	StatusInService = "InService"
	StatusUpdating  = "Updating"
	StatusDeleting  = "Deleting"
	StatusFailed    = "Failed"
)

// Network access modes for a domain's workspaces.
const (
	NetworkAccessPublicInternet = "PublicInternetOnly"
	NetworkAccessVPCOnly        = "VpcOnly"
)

// AuthModeIAM is the only authentication mode the provisioner creates
// domains with.
const AuthModeIAM = "IAM"

// Tag is a key/value resource tag.
type Tag struct {
	Key   string
	Value string
}

// CreateDomainInput is the specification for a new notebook domain.
type CreateDomainInput struct {
	DomainName           string
	AuthMode             string
	AppNetworkAccessType string
	DefaultUserSettings  UserSettings
	DefaultSpaceSettings UserSettings
	DomainSettings       map[string]any
	SubnetIDs            []string
	VPCID                string
}

// CreateDomainOutput carries the identifiers assigned at domain creation.
type CreateDomainOutput struct {
	DomainID  string
	DomainARN string
}

// UpdateDomainInput is a partial update: nil pointer / empty fields are left
// unchanged on the domain.
type UpdateDomainInput struct {
	DomainID             string
	DefaultUserSettings  *UserSettings
	DefaultSpaceSettings *UserSettings

	// AppNetworkAccessType changes the network mode when non-empty.
	AppNetworkAccessType string

	// DomainSettingsForUpdate contains only the domain-settings keys whose
	// values changed. Nil means no domain-settings update.
	DomainSettingsForUpdate map[string]any
}

// DeleteDomainInput deletes a domain. The retention choice for the home
// volume is explicit: retain keeps the attached file system, otherwise it is
// deleted with the domain.
type DeleteDomainInput struct {
	DomainID         string
	RetainHomeVolume bool
}

// DomainDescription is the describe payload for a domain.
type DomainDescription struct {
	DomainID             string
	DomainName           string
	DomainARN            string
	Status               string
	HomeEfsFileSystemID  string
	SubnetIDs            []string
	URL                  string
	VPCID                string
	AppNetworkAccessType string
	DefaultUserSettings  UserSettings
	DefaultSpaceSettings UserSettings
	DomainSettings       map[string]any
}

// CreateUserProfileInput is the specification for a new user profile.
type CreateUserProfileInput struct {
	DomainID        string
	UserProfileName string
	UserSettings    UserSettings
}

// UpdateUserProfileInput replaces a profile's settings in place.
type UpdateUserProfileInput struct {
	DomainID        string
	UserProfileName string
	UserSettings    UserSettings
}

// UserProfileDescription is the describe payload for a user profile.
type UserProfileDescription struct {
	DomainID             string
	UserProfileName      string
	UserProfileARN       string
	Status               string
	HomeEfsFileSystemUID string
	UserSettings         UserSettings
}

// CreateLifecycleConfigInput is the specification for a lifecycle config
// script. Name is unique within an account and region; Content is the
// base64-encoded script body.
type CreateLifecycleConfigInput struct {
	Name    string
	Content string
	AppType string
	Tags    []Tag
}

// VPC describes a virtual network.
type VPC struct {
	ID        string
	CIDR      string
	IsDefault bool
}

// Subnet describes a subnet within a VPC.
type Subnet struct {
	ID               string
	VPCID            string
	CIDR             string
	AvailabilityZone string
	DefaultForAZ     bool
}

// SecurityGroup describes a security group within a VPC.
type SecurityGroup struct {
	ID    string
	Name  string
	VPCID string
}

// Portfolio is a project-template portfolio shared with the account.
type Portfolio struct {
	ID           string
	ProviderName string
}

// ObjectInfo is the metadata returned when probing a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}
