package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/layerforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/layerforge/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), *settings)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("csv.delimiter", ";")
	_ = store.Set("mutation.settle_delay", "20ms")
	_ = store.Set("mutation.tolerance", 0.5)
	_ = store.Set("export.formats", []any{"psd", "png"})
	_ = store.Set("export.probe", false)
	_ = store.Set("host.burst", int64(3))
	_ = store.Set("relay.s3.bucket", "events")

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Equal(t, ';', settings.CSV.Delimiter)
	assert.Equal(t, 20*time.Millisecond, settings.Mutation.SettleDelay)
	assert.InDelta(t, 0.5, settings.Mutation.Tolerance, 1e-9)
	assert.Equal(t, []domain.ExportFormat{domain.FormatPSD, domain.FormatPNG}, settings.Export.Formats)
	assert.False(t, settings.Export.Probe)
	assert.Equal(t, 3, settings.Host.Burst)
	assert.Equal(t, "events", settings.Relay.S3.Bucket)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("mutation.settle_delay", "soon")
	_ = store.Set("export.formats", []string{"gif"})
	_ = store.Set("relay.buffer", -4)

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Mutation.SettleDelay, settings.Mutation.SettleDelay)
	assert.Equal(t, defaults.Export.Formats, settings.Export.Formats)
	assert.Equal(t, defaults.Relay.Buffer, settings.Relay.Buffer)
}

func TestSettingsService_Set(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, s *domain.Settings)
	}{
		{"formats", "export.formats", "PNG, psd", func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, []domain.ExportFormat{domain.FormatPNG, domain.FormatPSD}, s.Export.Formats)
		}},
		{"duration", "mutation.settle_delay", "1s", func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, time.Second, s.Mutation.SettleDelay)
		}},
		{"float", "host.commands_per_second", "12.5", func(t *testing.T, s *domain.Settings) {
			assert.InDelta(t, 12.5, s.Host.CommandsPerSecond, 1e-9)
		}},
		{"int", "mutation.content_attempts", "4", func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, 4, s.Mutation.ContentAttempts)
		}},
		{"bool", "relay.s3.use_ssl", "true", func(t *testing.T, s *domain.Settings) {
			assert.True(t, s.Relay.S3.UseSSL)
		}},
		{"rune", "csv.delimiter", "\t", func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, '\t', s.CSV.Delimiter)
		}},
		{"string", "export.folder_prefix", "Cards", func(t *testing.T, s *domain.Settings) {
			assert.Equal(t, "Cards", s.Export.FolderPrefix)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewSettingsService(memory.NewConfigStore())

			require.NoError(t, service.Set(tt.key, tt.value))

			settings, err := service.Get()
			require.NoError(t, err)
			tt.check(t, settings)
		})
	}
}

func TestSettingsService_Set_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "search.mode", "hybrid"},
		{"unknown format", "export.formats", "png,gif"},
		{"empty formats", "export.formats", " , "},
		{"bad duration", "mutation.settle_delay", "later"},
		{"negative int", "relay.buffer", "-1"},
		{"bad float", "mutation.tolerance", "tight"},
		{"bad bool", "export.probe", "maybe"},
		{"long delimiter", "csv.delimiter", ";;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore()
			service := NewSettingsService(store)

			err := service.Set(tt.key, tt.value)

			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, store.Keys())
		})
	}
}

func TestSettingsService_Values(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)
	require.NoError(t, service.Set("relay.s3.secret_key", "hunter2"))
	require.NoError(t, service.Set("export.formats", "png,psd"))

	values, err := service.Values()

	require.NoError(t, err)
	assert.Equal(t, "********", values["relay.s3.secret_key"])
	assert.Equal(t, "png,psd", values["export.formats"])
	assert.Equal(t, "150ms", values["mutation.settle_delay"])
	assert.Equal(t, ",", values["csv.delimiter"])
	for _, key := range service.Keys() {
		_, ok := values[key]
		assert.True(t, ok, "missing %s", key)
	}
}

func TestLoadSettings(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("export.file_prefix", "card")

	settings := LoadSettings(store)

	assert.Equal(t, "card", settings.Export.FilePrefix)
	assert.Equal(t, domain.DefaultSettings().CSV, settings.CSV)
}
