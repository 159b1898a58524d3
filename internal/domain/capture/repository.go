package capture

import "context"

// SettingsRepository persists the capture settings.
type SettingsRepository interface {
	// GetSettings returns the stored settings, or ErrSettingsNotFound.
	GetSettings(ctx context.Context) (*Settings, error)
	// SaveSettings replaces the stored settings.
	SaveSettings(ctx context.Context, settings *Settings) error
}
