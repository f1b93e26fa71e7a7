package driving

import "github.com/custodia-labs/layerforge/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings, defaults applied.
	Get() (*domain.Settings, error)

	// Set validates and stores one setting by its dot key.
	Set(key, value string) error

	// Values renders every known setting as key/value strings.
	Values() (map[string]string, error)

	// Keys returns every known setting key in display order.
	Keys() []string

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
