package reconciler

import (
	"context"
	"fmt"

	"studioprov/internal/content"
	"studioprov/internal/envelope"
	"studioprov/internal/projects"
	"studioprov/pkg/logging"
)

const setupSubsystem = "UserSetupReconciler"

var userSetupSchema = envelope.MustCompileSchema("studio-user-setup.json", `{
	"type": "object",
	"required": ["DomainId", "HomeEfsFileSystemUid", "UserProfileName"],
	"properties": {
		"DomainId": {"type": "string", "minLength": 1},
		"HomeEfsFileSystemUid": {"type": ["string", "number"]},
		"UserProfileName": {"type": "string", "minLength": 1},
		"TargetPath": {"type": "string"},
		"GitRepository": {"type": "string"},
		"GitCheckout": {"type": "string"},
		"ContentS3Uri": {"type": "string"},
		"AuthenticateS3": {"type": ["boolean", "string"]},
		"ExtractContent": {"type": ["boolean", "string"]},
		"EnableProjects": {"type": ["boolean", "string"]}
	}
}`)

// UserSetupReconciler performs the one-shot, best-effort population of a
// user's storage area, plus optional project template access for the user's
// execution role. Content failures never fail the resource: users can always
// clone a repository by hand, and a failed convenience bootstrap must not
// roll back the rest of the stack. Delete is a pure no-op.
type UserSetupReconciler struct {
	loader  *content.Loader
	enabler *projects.Enabler
}

// NewUserSetupReconciler creates a UserSetupReconciler.
func NewUserSetupReconciler(loader *content.Loader, enabler *projects.Enabler) *UserSetupReconciler {
	return &UserSetupReconciler{loader: loader, enabler: enabler}
}

func (r *UserSetupReconciler) ResourceType() string { return ResourceTypeUserSetup }

func (r *UserSetupReconciler) Schema() *envelope.Schema { return userSetupSchema }

type userSetupProperties struct {
	domainID        string
	uid             string
	userProfileName string
	targetPath      string

	gitRepository string
	gitCheckout   string

	contentS3URI   string
	authenticateS3 bool
	extractContent bool

	enableProjects bool
}

func parseUserSetupProperties(props map[string]any) (*userSetupProperties, error) {
	domainID, err := envelope.String(props, "DomainId")
	if err != nil {
		return nil, err
	}
	uid, err := envelope.OptionalStringOrNumber(props, "HomeEfsFileSystemUid")
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, fmt.Errorf("missing required property HomeEfsFileSystemUid")
	}
	userProfileName, err := envelope.String(props, "UserProfileName")
	if err != nil {
		return nil, err
	}
	parsed := &userSetupProperties{
		domainID:        domainID,
		uid:             uid,
		userProfileName: userProfileName,
	}
	if parsed.targetPath, err = envelope.OptionalString(props, "TargetPath"); err != nil {
		return nil, err
	}
	if parsed.gitRepository, err = envelope.OptionalString(props, "GitRepository"); err != nil {
		return nil, err
	}
	if parsed.gitCheckout, err = envelope.OptionalString(props, "GitCheckout"); err != nil {
		return nil, err
	}
	if parsed.contentS3URI, err = envelope.OptionalString(props, "ContentS3Uri"); err != nil {
		return nil, err
	}
	if parsed.authenticateS3, err = envelope.OptionalBool(props, "AuthenticateS3", false); err != nil {
		return nil, err
	}
	if parsed.extractContent, err = envelope.OptionalBool(props, "ExtractContent", false); err != nil {
		return nil, err
	}
	if parsed.enableProjects, err = envelope.OptionalBool(props, "EnableProjects", false); err != nil {
		return nil, err
	}

	if parsed.gitRepository != "" && parsed.contentS3URI != "" {
		return nil, fmt.Errorf("cannot set both GitRepository and ContentS3Uri: " +
			"create a separate resource instance for your git and object-store content items")
	}
	if parsed.gitRepository == "" && parsed.contentS3URI == "" {
		return nil, fmt.Errorf("must set either GitRepository (git content) or ContentS3Uri (object-store content)")
	}
	return parsed, nil
}

// Create validates the properties, then runs project enablement and content
// loading best-effort. The physical id is the user profile name.
func (r *UserSetupReconciler) Create(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseUserSetupProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	r.enableProjects(ctx, props)
	r.loadContent(ctx, props)
	logging.Info(setupSubsystem, "User %s set up", props.userProfileName)
	return &envelope.Response{
		PhysicalResourceID: props.userProfileName,
		Data:               map[string]string{"UserProfileName": props.userProfileName},
	}, nil
}

// Update re-runs project enablement (best-effort) but does not repeat the
// content drop: the one-shot content load has no meaningful update
// semantics, and re-cloning over a user's working copy would destroy work.
func (r *UserSetupReconciler) Update(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	props, err := parseUserSetupProperties(event.ResourceProperties)
	if err != nil {
		return nil, err
	}
	r.enableProjects(ctx, props)
	return &envelope.Response{PhysicalResourceID: event.PhysicalResourceID}, nil
}

// Delete is a no-op: there is nothing to roll back for a one-shot content
// drop.
func (r *UserSetupReconciler) Delete(ctx context.Context, event *envelope.Event) (*envelope.Response, error) {
	logging.Info(setupSubsystem, "Deleting user setup is a no-op: %s", event.PhysicalResourceID)
	return &envelope.Response{PhysicalResourceID: event.PhysicalResourceID}, nil
}

func (r *UserSetupReconciler) enableProjects(ctx context.Context, props *userSetupProperties) {
	if !props.enableProjects {
		return
	}
	err := r.enabler.EnableForUser(ctx, props.domainID, props.userProfileName)
	if err != nil {
		logging.Error(setupSubsystem, err, "Ignoring project template setup error for user %s", props.userProfileName)
	}
}

func (r *UserSetupReconciler) loadContent(ctx context.Context, props *userSetupProperties) {
	home, err := r.loader.EnsureHomeDir(props.uid)
	if err != nil {
		logging.Error(setupSubsystem, err, "Ignoring content setup error for user %s", props.userProfileName)
		return
	}

	var target string
	switch {
	case props.gitRepository != "":
		target, err = r.loader.CloneRepository(ctx, home, props.gitRepository, props.targetPath, props.gitCheckout)
	case props.contentS3URI != "":
		target, err = r.loader.CopyObject(ctx, home, props.contentS3URI, props.targetPath,
			props.extractContent, props.authenticateS3)
	}
	if err != nil {
		logging.Error(setupSubsystem, err, "Ignoring content setup error for user %s", props.userProfileName)
		return
	}

	// Give the user write access to everything just created.
	if err := r.loader.ChownRecursive(target, props.uid); err != nil {
		logging.Error(setupSubsystem, err, "Ignoring ownership fix-up error for user %s", props.userProfileName)
	}
}
