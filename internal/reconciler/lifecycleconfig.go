package reconciler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"studioprov/internal/controlplane"
	"studioprov/internal/envelope"
	"studioprov/internal/waiter"
	"studioprov/pkg/logging"
)

const lccSubsystem = "LifecycleConfigReconciler"

var lifecycleConfigSchema = envelope.MustCompileSchema("studio-lifecycle-config.json", `{
	"type": "object",
	"required": ["AppType", "Name", "Content"],
	"properties": {
		"AppType": {"type": "string", "minLength": 1},
		"Name": {"type": "string", "minLength": 1},
		"Content": {"type": "string", "minLength": 1},
		"Tags": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["Key", "Value"],
				"properties": {
					"Key": {"type": "string"},
					"Value": {"type": "string"}
				}
			}
		},
		"DomainId": {"type": "string"}
	}
}`)

// LifecycleConfigReconciler manages lifecycle config script resources and
// their attachment into a domain's default per-app settings. The (name,
// app-type) pair is the script's identity: any change to it, or to the
// content, replaces the script rather than updating it in place.
type LifecycleConfigReconciler struct {
	client controlplane.Client
	wait   waiter.Config
}

// NewLifecycleConfigReconciler creates a LifecycleConfigReconciler.
func NewLifecycleConfigReconciler(client controlplane.Client, wait waiter.Config) *LifecycleConfigReconciler {
	return &LifecycleConfigReconciler{client: client, wait: wait}
}

func (r *LifecycleConfigReconciler) ResourceType() string { return ResourceTypeLifecycleConfig }

func (r *LifecycleConfigReconciler) Schema() *envelope.Schema { return lifecycleConfigSchema }

type lifecycleConfigProperties struct {
	appType  string
	name     string
	content  string
	domainID string
	tags     []controlplane.Tag
}

func parseLifecycleConfigProperties(props map[string]any) (*lifecycleConfigProperties, error) {
	appType, err := envelope.String(props, "AppType")
	if err != nil {
		return nil, err
	}
	name, err := envelope.String(props, "Name")
	if err != nil {
		return nil, err
	}
	scriptContent, err := envelope.String(props, "Content")
	if err != nil {
		return nil, err
	}
	domainID, err := envelope.OptionalString(props, "DomainId")
	if err != nil {
		return nil, err
	}
	tags, err := parseTags(props, "Tags")
	if err != nil {
		return nil, err
	}
	return &lifecycleConfigProperties{
		appType:  appType,
		name:     name,
		content:  scriptContent,
		domainID: domainID,
		tags:     tags,
	}, nil
}

func parseTags(props map[string]any, key string) ([]controlplane.Tag, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("property %s must be a list of tags, got %T", key, value)
	}
	tags := make([]controlplane.Tag, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("property %s must contain Key/Value objects, got %T", key, item)
		}
		tagKey, _ := entry["Key"].(string)
		tagValue, _ := entry["Value"].(string)
		if tagKey == "" {
			return nil, fmt.Errorf("property %s contains a tag without a Key", key)
		}
		tags = append(tags, controlplane.Tag{Key: tagKey, Value: tagValue})
	}
	return tags, nil
}

// scriptName extracts the script name from its ARN (the physical id).
func scriptName(scriptARN string) string {
	return scriptARN[strings.LastIndex(scriptARN, "/")+1:]
}

// Create registers the script and, when an owning domain is given, attaches
// it. An attach failure after a successful create still reports the script
// ARN so rollback can delete the orphaned script.
func (r *LifecycleConfigReconciler) Create(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseLifecycleConfigProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	logging.Info(lccSubsystem, "Creating lifecycle config script %s (%s)", props.name, props.appType)
	scriptARN, err := r.client.CreateLifecycleConfig(ctx, controlplane.CreateLifecycleConfigInput{
		Name:    props.name,
		Content: props.content,
		AppType: props.appType,
		Tags:    props.tags,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lifecycle config %s: %w", props.name, err)
	}
	if props.domainID != "" {
		if err := r.attach(ctx, props.domainID, scriptARN, props.appType); err != nil {
			return nil, failWith(scriptARN, fmt.Errorf("attaching script to domain %s: %w", props.domainID, err))
		}
	}
	return &envelope.Response{
		PhysicalResourceID: scriptARN,
		Data:               map[string]string{"AppType": props.appType, "Name": props.name},
	}, nil
}

// Update replaces the script when its content or (name, app-type) identity
// changed, detaching from the old domain first and reattaching the new ARN
// afterwards. A domain-only move detaches and reattaches without replacing.
func (r *LifecycleConfigReconciler) Update(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseLifecycleConfigProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	var oldProps *lifecycleConfigProperties
	if event.OldResourceProperties != nil {
		oldProps, err = parseLifecycleConfigProperties(event.OldResourceProperties)
		if err != nil {
			logging.Warn(lccSubsystem, "Ignoring unparseable prior properties: %v", err)
			oldProps = nil
		}
	}

	locationChanged := oldProps == nil ||
		props.name != oldProps.name ||
		props.appType != oldProps.appType
	modified := locationChanged || props.content != oldProps.content

	scriptARN := event.PhysicalResourceID
	oldDomain := ""
	oldAppType := props.appType
	oldName := scriptName(scriptARN)
	if oldProps != nil {
		oldDomain = oldProps.domainID
		oldAppType = oldProps.appType
		oldName = oldProps.name
	}

	if oldDomain != "" && (modified || props.domainID != oldDomain) {
		if err := r.detach(ctx, oldDomain, scriptARN, oldAppType); err != nil {
			return nil, failWith(scriptARN, fmt.Errorf("detaching script from domain %s: %w", oldDomain, err))
		}
	}

	if modified {
		logging.Info(lccSubsystem, "Replacing lifecycle config script %s with %s", oldName, props.name)
		if err := r.client.DeleteLifecycleConfig(ctx, oldName); err != nil && !controlplane.IsNotFound(err) {
			return nil, failWith(scriptARN, fmt.Errorf("deleting lifecycle config %s: %w", oldName, err))
		}
		newARN, err := r.client.CreateLifecycleConfig(ctx, controlplane.CreateLifecycleConfigInput{
			Name:    props.name,
			Content: props.content,
			AppType: props.appType,
			Tags:    props.tags,
		})
		if err != nil {
			return nil, failWith(scriptARN, fmt.Errorf("creating lifecycle config %s: %w", props.name, err))
		}
		scriptARN = newARN
	}

	if props.domainID != "" && (modified || props.domainID != oldDomain) {
		if err := r.attach(ctx, props.domainID, scriptARN, props.appType); err != nil {
			return nil, failWith(scriptARN, fmt.Errorf("attaching script to domain %s: %w", props.domainID, err))
		}
	}

	return &envelope.Response{
		PhysicalResourceID: scriptARN,
		Data:               map[string]string{"AppType": props.appType, "Name": props.name},
	}, nil
}

// Delete detaches the script from its domain when one is known (a stuck
// attachment must not block deleting the script itself) and then removes the
// script resource, tolerating not-found.
func (r *LifecycleConfigReconciler) Delete(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	scriptARN := event.PhysicalResourceID
	name := scriptName(scriptARN)

	props, err := parseLifecycleConfigProperties(event.ResourceProperties)
	if err != nil {
		logging.Warn(lccSubsystem, "Ignoring unparseable properties on delete: %v", err)
		props = nil
	}
	if props != nil && props.domainID != "" {
		if err := r.detach(ctx, props.domainID, scriptARN, props.appType); err != nil {
			logging.Warn(lccSubsystem, "Failed to detach script from domain %s - deleting script anyway: %v",
				props.domainID, err)
		}
	}

	logging.Info(lccSubsystem, "Deleting lifecycle config script %s", name)
	if err := r.client.DeleteLifecycleConfig(ctx, name); err != nil && !controlplane.IsNotFound(err) {
		return nil, failWith(scriptARN, fmt.Errorf("deleting lifecycle config %s: %w", name, err))
	}
	return &envelope.Response{PhysicalResourceID: scriptARN}, nil
}

// attach adds the script's ARN to the domain's default per-app settings list
// if it is not already there. The push is retried on conflict and followed
// by a settle delay, since an immediately-following read can be stale.
func (r *LifecycleConfigReconciler) attach(ctx context.Context, domainID, scriptARN, appType string) error {
	desc, err := r.client.DescribeDomain(ctx, domainID)
	if err != nil {
		return err
	}
	settings := desc.DefaultUserSettings.Clone()
	field := controlplane.AppSettingsField(appType)
	app := settings.App(field)
	if slices.Contains(app.LifecycleConfigArns, scriptARN) {
		logging.Info(lccSubsystem, "Script already default on domain %s: %s", domainID, scriptARN)
		return nil
	}

	logging.Info(lccSubsystem, "Adding script to domain %s: %s", domainID, scriptARN)
	app.LifecycleConfigArns = append(app.LifecycleConfigArns, scriptARN)
	settings.SetApp(field, app)
	err = waiter.RetryOnConflict(ctx, r.wait, func() error {
		return r.client.UpdateDomain(ctx, controlplane.UpdateDomainInput{
			DomainID:            domainID,
			DefaultUserSettings: &settings,
		})
	})
	if err != nil {
		return err
	}
	waiter.Settle(r.wait)
	return nil
}

// detach is the mirror of attach: removing an ARN that is not in the list is
// a no-op.
func (r *LifecycleConfigReconciler) detach(ctx context.Context, domainID, scriptARN, appType string) error {
	desc, err := r.client.DescribeDomain(ctx, domainID)
	if err != nil {
		return err
	}
	settings := desc.DefaultUserSettings.Clone()
	field := controlplane.AppSettingsField(appType)
	app := settings.App(field)
	index := slices.Index(app.LifecycleConfigArns, scriptARN)
	if index < 0 {
		logging.Info(lccSubsystem, "Script already absent from domain %s: %s", domainID, scriptARN)
		return nil
	}

	logging.Info(lccSubsystem, "Removing script from domain %s: %s", domainID, scriptARN)
	app.LifecycleConfigArns = slices.Delete(app.LifecycleConfigArns, index, index+1)
	settings.SetApp(field, app)
	err = waiter.RetryOnConflict(ctx, r.wait, func() error {
		return r.client.UpdateDomain(ctx, controlplane.UpdateDomainInput{
			DomainID:            domainID,
			DefaultUserSettings: &settings,
		})
	})
	if err != nil {
		return err
	}
	waiter.Settle(r.wait)
	return nil
}
