package reconciler

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"studioprov/internal/controlplane"
	"studioprov/internal/envelope"
	"studioprov/internal/vpc"
	"studioprov/internal/waiter"
	"studioprov/pkg/logging"
)

const domainSubsystem = "DomainReconciler"

var domainSchema = envelope.MustCompileSchema("studio-domain.json", `{
	"type": "object",
	"required": ["DomainName"],
	"properties": {
		"DomainName": {"type": "string", "minLength": 1},
		"DefaultUserSettings": {"type": "object"},
		"DefaultSpaceSettings": {"type": "object"},
		"DomainSettings": {"type": "object"},
		"EnableProjects": {"type": ["boolean", "string"]},
		"ProposeAdminSubnet": {"type": ["boolean", "string"]},
		"SubnetIds": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"UseVpcNetworking": {"type": ["boolean", "string"]},
		"VpcId": {"type": "string"}
	}
}`)

// domainSettingsUpdateKey maps the settings keys the update API names
// differently from the create API. Only one key is known to need this.
var domainSettingsUpdateKey = map[string]string{
	"RStudioServerProDomainSettings": "RStudioServerProDomainSettingsForUpdate",
}

// DomainReconciler manages the notebook domain resource, including network
// placement defaults and the file-system security group outputs dependent
// resources consume.
type DomainReconciler struct {
	client   controlplane.Client
	resolver *vpc.Resolver
	wait     waiter.Config
}

// NewDomainReconciler creates a DomainReconciler over the given clients.
func NewDomainReconciler(client controlplane.Client, network controlplane.Network, wait waiter.Config) *DomainReconciler {
	return &DomainReconciler{
		client:   client,
		resolver: vpc.NewResolver(network),
		wait:     wait,
	}
}

func (r *DomainReconciler) ResourceType() string { return ResourceTypeDomain }

func (r *DomainReconciler) Schema() *envelope.Schema { return domainSchema }

type domainProperties struct {
	domainName           string
	defaultUserSettings  controlplane.UserSettings
	defaultSpaceSettings controlplane.UserSettings
	domainSettings       map[string]any
	enableProjects       bool
	proposeAdminSubnet   bool
	subnetIDs            []string
	useVPCNetworking     bool
	vpcID                string
}

func parseDomainProperties(props map[string]any) (*domainProperties, error) {
	domainName, err := envelope.String(props, "DomainName")
	if err != nil {
		return nil, err
	}
	userRaw, err := envelope.OptionalMap(props, "DefaultUserSettings")
	if err != nil {
		return nil, err
	}
	spaceRaw, err := envelope.OptionalMap(props, "DefaultSpaceSettings")
	if err != nil {
		return nil, err
	}
	parsed := &domainProperties{
		domainName:           domainName,
		defaultUserSettings:  controlplane.UserSettingsFromMap(userRaw),
		defaultSpaceSettings: controlplane.UserSettingsFromMap(spaceRaw),
	}
	// An execution role given on only one of the settings blocks applies to
	// both.
	switch {
	case parsed.defaultUserSettings.ExecutionRole != "" && parsed.defaultSpaceSettings.ExecutionRole == "":
		parsed.defaultSpaceSettings.ExecutionRole = parsed.defaultUserSettings.ExecutionRole
	case parsed.defaultSpaceSettings.ExecutionRole != "" && parsed.defaultUserSettings.ExecutionRole == "":
		parsed.defaultUserSettings.ExecutionRole = parsed.defaultSpaceSettings.ExecutionRole
	}
	if parsed.domainSettings, err = envelope.OptionalMap(props, "DomainSettings"); err != nil {
		return nil, err
	}
	if parsed.enableProjects, err = envelope.OptionalBool(props, "EnableProjects", true); err != nil {
		return nil, err
	}
	if parsed.proposeAdminSubnet, err = envelope.OptionalBool(props, "ProposeAdminSubnet", false); err != nil {
		return nil, err
	}
	if parsed.subnetIDs, err = envelope.StringList(props, "SubnetIds"); err != nil {
		return nil, err
	}
	if parsed.useVPCNetworking, err = envelope.OptionalBool(props, "UseVpcNetworking", false); err != nil {
		return nil, err
	}
	if parsed.vpcID, err = envelope.OptionalString(props, "VpcId"); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (p *domainProperties) networkAccessType() string {
	if p.useVPCNetworking {
		return controlplane.NetworkAccessVPCOnly
	}
	return controlplane.NetworkAccessPublicInternet
}

// Create provisions a new domain. Network placement defaults are resolved
// before the create call; everything after the create call carries the new
// domain id on failure so a compensating delete can clean up.
func (r *DomainReconciler) Create(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseDomainProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	vpcID, err := r.resolver.ResolveVPC(ctx, props.vpcID)
	if err != nil {
		return nil, err
	}
	subnetIDs, err := r.resolver.ResolveSubnets(ctx, vpcID, props.subnetIDs)
	if err != nil {
		return nil, err
	}

	logging.Info(domainSubsystem, "Creating domain %s in %s", props.domainName, vpcID)
	created, err := r.client.CreateDomain(ctx, controlplane.CreateDomainInput{
		DomainName:           props.domainName,
		AuthMode:             controlplane.AuthModeIAM,
		AppNetworkAccessType: props.networkAccessType(),
		DefaultUserSettings:  props.defaultUserSettings,
		DefaultSpaceSettings: props.defaultSpaceSettings,
		DomainSettings:       props.domainSettings,
		SubnetIDs:            subnetIDs,
		VPCID:                vpcID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating domain %s: %w", props.domainName, err)
	}
	domainID := created.DomainID

	desc, err := r.pollInService(ctx, domainID)
	if err != nil {
		return nil, failWith(domainID, err)
	}
	logging.Info(domainSubsystem, "Domain %s is in service", domainID)

	if props.enableProjects {
		if err := r.client.EnableProjectsPortfolio(ctx); err != nil {
			return nil, failWith(domainID, fmt.Errorf("enabling project template portfolio: %w", err))
		}
	}

	inbound, outbound, err := r.resolver.FileSystemSecurityGroups(ctx, domainID, desc.VPCID)
	if err != nil {
		return nil, failWith(domainID, err)
	}

	data := map[string]string{
		"DomainId":                   desc.DomainID,
		"DomainName":                 desc.DomainName,
		"HomeEfsFileSystemId":        desc.HomeEfsFileSystemID,
		"SubnetIds":                  strings.Join(desc.SubnetIDs, ","),
		"Url":                        desc.URL,
		"VpcId":                      desc.VPCID,
		"InboundEFSSecurityGroupId":  inbound,
		"OutboundEFSSecurityGroupId": outbound,
	}
	if props.proposeAdminSubnet {
		cidr, err := r.resolver.ProposeSubnetCIDR(ctx, desc.VPCID)
		if err != nil {
			return nil, failWith(domainID, err)
		}
		data["ProposedAdminSubnetCidr"] = cidr
	}
	return &envelope.Response{PhysicalResourceID: domainID, Data: data}, nil
}

// Update applies a partial update: default settings always, network mode
// only when it changed, and only the domain-settings keys whose values
// differ from the prior snapshot.
func (r *DomainReconciler) Update(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseDomainProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	var oldProps *domainProperties
	if event.OldResourceProperties != nil {
		oldProps, err = parseDomainProperties(event.OldResourceProperties)
		if err != nil {
			logging.Warn(domainSubsystem, "Ignoring unparseable prior properties: %v", err)
			oldProps = nil
		}
	}
	domainID := event.PhysicalResourceID

	update := controlplane.UpdateDomainInput{
		DomainID:             domainID,
		DefaultUserSettings:  &props.defaultUserSettings,
		DefaultSpaceSettings: &props.defaultSpaceSettings,
	}
	if oldProps == nil || props.useVPCNetworking != oldProps.useVPCNetworking {
		update.AppNetworkAccessType = props.networkAccessType()
	}
	if len(props.domainSettings) > 0 {
		var prior map[string]any
		if oldProps != nil {
			prior = oldProps.domainSettings
		}
		update.DomainSettingsForUpdate = domainSettingsDiff(props.domainSettings, prior)
	}

	logging.Info(domainSubsystem, "Updating domain %s", domainID)
	err = waiter.RetryOnConflict(ctx, r.wait, func() error {
		return r.client.UpdateDomain(ctx, update)
	})
	if err != nil {
		return nil, failWith(domainID, fmt.Errorf("updating domain %s: %w", domainID, err))
	}
	if _, err := r.pollInService(ctx, domainID); err != nil {
		return nil, failWith(domainID, err)
	}

	if props.enableProjects && (oldProps == nil || !oldProps.enableProjects) {
		if err := r.client.EnableProjectsPortfolio(ctx); err != nil {
			return nil, failWith(domainID, fmt.Errorf("enabling project template portfolio: %w", err))
		}
	}
	return &envelope.Response{
		PhysicalResourceID: domainID,
		Data:               map[string]string{"DomainId": domainID},
	}, nil
}

// Delete removes the domain and its home volume. A domain that no longer
// exists is deletion success; completion is signalled by describe starting
// to fail with not-found, not by any status value.
func (r *DomainReconciler) Delete(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	domainID := event.PhysicalResourceID
	if _, err := r.client.DescribeDomain(ctx, domainID); err != nil {
		if controlplane.IsNotFound(err) {
			logging.Info(domainSubsystem, "Domain %s not found - treating delete as success", domainID)
			return &envelope.Response{PhysicalResourceID: domainID}, nil
		}
		return nil, failWith(domainID, err)
	}

	logging.Info(domainSubsystem, "Deleting domain %s", domainID)
	err := r.client.DeleteDomain(ctx, controlplane.DeleteDomainInput{
		DomainID:         domainID,
		RetainHomeVolume: false,
	})
	if err != nil {
		return nil, failWith(domainID, fmt.Errorf("deleting domain %s: %w", domainID, err))
	}
	err = waiter.PollUntilGone(ctx, r.wait, "domain "+domainID, func(ctx context.Context) (string, error) {
		desc, err := r.client.DescribeDomain(ctx, domainID)
		if err != nil {
			return "", err
		}
		return desc.Status, nil
	}, nil)
	if err != nil {
		return nil, failWith(domainID, err)
	}
	return &envelope.Response{PhysicalResourceID: domainID}, nil
}

func (r *DomainReconciler) pollInService(ctx context.Context, domainID string) (*controlplane.DomainDescription, error) {
	return waiter.Poll(ctx, r.wait, "domain "+domainID,
		func(ctx context.Context) (*controlplane.DomainDescription, error) {
			return r.client.DescribeDomain(ctx, domainID)
		},
		func(desc *controlplane.DomainDescription) string { return desc.Status },
		controlplane.StatusInService,
	)
}

// domainSettingsDiff returns only the keys whose values changed from the
// prior snapshot, renamed where the update API requires it. Re-sending
// unchanged keys can trigger spurious resource churn downstream. A nil prior
// snapshot means every key counts as changed.
func domainSettingsDiff(updated, prior map[string]any) map[string]any {
	diff := map[string]any{}
	for key, value := range updated {
		if prior != nil && reflect.DeepEqual(value, prior[key]) {
			continue
		}
		updateKey := key
		if renamed, ok := domainSettingsUpdateKey[key]; ok {
			updateKey = renamed
		}
		diff[updateKey] = value
	}
	return diff
}
