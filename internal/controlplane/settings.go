package controlplane

import "strings"

// UserSettings models a domain's default user (or space) settings document,
// or a user profile's settings. Only the fields the reconcilers interpret
// are typed; every other top-level key rides along opaquely in Extra so the
// provider's full schema never needs modeling here.
type UserSettings struct {
	// ExecutionRole is the identity applied to workloads started under these
	// settings.
	ExecutionRole string

	// Apps holds per-application settings blocks, keyed by the provider's
	// settings field name (e.g. "JupyterServerAppSettings").
	Apps map[string]AppSettings

	// Extra preserves top-level keys this package does not interpret.
	Extra map[string]any
}

// AppSettings is the per-application-type settings block. The lifecycle
// config list is typed because the attach/detach algorithm edits it; other
// keys pass through in Extra.
type AppSettings struct {
	LifecycleConfigArns []string
	Extra               map[string]any
}

const (
	executionRoleKey       = "ExecutionRole"
	appSettingsSuffix      = "AppSettings"
	lifecycleConfigArnsKey = "LifecycleConfigArns"
)

// AppSettingsField returns the settings field name a lifecycle config of the
// given application type attaches under, e.g. "JupyterServer" ->
// "JupyterServerAppSettings".
func AppSettingsField(appType string) string {
	return appType + appSettingsSuffix
}

// UserSettingsFromMap parses a raw settings document into a UserSettings
// value. Unrecognized keys are preserved verbatim.
func UserSettingsFromMap(raw map[string]any) UserSettings {
	settings := UserSettings{}
	if raw == nil {
		return settings
	}
	for key, value := range raw {
		switch {
		case key == executionRoleKey:
			if role, ok := value.(string); ok {
				settings.ExecutionRole = role
				continue
			}
		case hasAppSettingsShape(key, value):
			if settings.Apps == nil {
				settings.Apps = map[string]AppSettings{}
			}
			settings.Apps[key] = appSettingsFromMap(value.(map[string]any))
			continue
		}
		if settings.Extra == nil {
			settings.Extra = map[string]any{}
		}
		settings.Extra[key] = value
	}
	return settings
}

func hasAppSettingsShape(key string, value any) bool {
	if !strings.HasSuffix(key, appSettingsSuffix) || key == appSettingsSuffix {
		return false
	}
	_, ok := value.(map[string]any)
	return ok
}

func appSettingsFromMap(raw map[string]any) AppSettings {
	app := AppSettings{}
	for key, value := range raw {
		if key == lifecycleConfigArnsKey {
			if arns, ok := toStringSlice(value); ok {
				app.LifecycleConfigArns = arns
				continue
			}
		}
		if app.Extra == nil {
			app.Extra = map[string]any{}
		}
		app.Extra[key] = value
	}
	return app
}

func toStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// ToMap renders the settings back into the provider's document shape,
// folding typed fields and Extra together.
func (s UserSettings) ToMap() map[string]any {
	out := map[string]any{}
	for key, value := range s.Extra {
		out[key] = value
	}
	if s.ExecutionRole != "" {
		out[executionRoleKey] = s.ExecutionRole
	}
	for field, app := range s.Apps {
		out[field] = app.toMap()
	}
	return out
}

func (a AppSettings) toMap() map[string]any {
	out := map[string]any{}
	for key, value := range a.Extra {
		out[key] = value
	}
	if a.LifecycleConfigArns != nil {
		out[lifecycleConfigArnsKey] = append([]string(nil), a.LifecycleConfigArns...)
	}
	return out
}

// Clone returns a deep copy of the settings. The attach/detach algorithm
// mutates a copy of the described settings before pushing them back.
func (s UserSettings) Clone() UserSettings {
	out := UserSettings{ExecutionRole: s.ExecutionRole}
	if s.Apps != nil {
		out.Apps = make(map[string]AppSettings, len(s.Apps))
		for field, app := range s.Apps {
			out.Apps[field] = app.clone()
		}
	}
	if s.Extra != nil {
		out.Extra = make(map[string]any, len(s.Extra))
		for key, value := range s.Extra {
			out.Extra[key] = value
		}
	}
	return out
}

func (a AppSettings) clone() AppSettings {
	out := AppSettings{}
	if a.LifecycleConfigArns != nil {
		out.LifecycleConfigArns = append([]string(nil), a.LifecycleConfigArns...)
	}
	if a.Extra != nil {
		out.Extra = make(map[string]any, len(a.Extra))
		for key, value := range a.Extra {
			out.Extra[key] = value
		}
	}
	return out
}

// App returns the settings block for the given settings field, initializing
// an empty one if absent. The returned value is a copy; callers mutate it
// and store it back with SetApp.
func (s UserSettings) App(field string) AppSettings {
	if app, ok := s.Apps[field]; ok {
		return app.clone()
	}
	return AppSettings{}
}

// SetApp stores the settings block for the given settings field.
func (s *UserSettings) SetApp(field string, app AppSettings) {
	if s.Apps == nil {
		s.Apps = map[string]AppSettings{}
	}
	s.Apps[field] = app
}
