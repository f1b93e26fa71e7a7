package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyCSVDelimiter       = "csv.delimiter"
	keyCSVContentPrefix   = "csv.content_prefix"
	keyCSVModifierPrefix  = "csv.modifier_prefix"
	keyCSVLineBreak       = "csv.line_break"
	keyTargetPrefix       = "mutation.target_prefix"
	keySettleDelay        = "mutation.settle_delay"
	keyTolerance          = "mutation.tolerance"
	keyContentAttempts    = "mutation.content_attempts"
	keyExportFormats      = "export.formats"
	keyExportFolderPrefix = "export.folder_prefix"
	keyExportFilePrefix   = "export.file_prefix"
	keyExportProbe        = "export.probe"
	keyHostRate           = "host.commands_per_second"
	keyHostBurst          = "host.burst"
	keyRelayDir           = "relay.dir"
	keyRelayBuffer        = "relay.buffer"
	keyS3Endpoint         = "relay.s3.endpoint"
	keyS3Region           = "relay.s3.region"
	keyS3Bucket           = "relay.s3.bucket"
	keyS3AccessKey        = "relay.s3.access_key"
	keyS3SecretKey        = "relay.s3.secret_key"
	keyS3Prefix           = "relay.s3.prefix"
	keyS3UseSSL           = "relay.s3.use_ssl"
)

type valueKind int

const (
	kindString valueKind = iota
	kindRune
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindFormats
)

var settingKinds = []struct {
	key  string
	kind valueKind
}{
	{keyCSVDelimiter, kindRune},
	{keyCSVContentPrefix, kindString},
	{keyCSVModifierPrefix, kindString},
	{keyCSVLineBreak, kindString},
	{keyTargetPrefix, kindString},
	{keySettleDelay, kindDuration},
	{keyTolerance, kindFloat},
	{keyContentAttempts, kindInt},
	{keyExportFormats, kindFormats},
	{keyExportFolderPrefix, kindString},
	{keyExportFilePrefix, kindString},
	{keyExportProbe, kindBool},
	{keyHostRate, kindFloat},
	{keyHostBurst, kindInt},
	{keyRelayDir, kindString},
	{keyRelayBuffer, kindInt},
	{keyS3Endpoint, kindString},
	{keyS3Region, kindString},
	{keyS3Bucket, kindString},
	{keyS3AccessKey, kindString},
	{keyS3SecretKey, kindString},
	{keyS3Prefix, kindString},
	{keyS3UseSSL, kindBool},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// LoadSettings reads settings from a config store, applying defaults.
func LoadSettings(configStore driven.ConfigStore) domain.Settings {
	s, _ := NewSettingsService(configStore).Get()
	return *s
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	settings := &domain.Settings{
		CSV: domain.CSVSettings{
			Delimiter:      s.getRune(keyCSVDelimiter, d.CSV.Delimiter),
			ContentPrefix:  s.getString(keyCSVContentPrefix, d.CSV.ContentPrefix),
			ModifierPrefix: s.getString(keyCSVModifierPrefix, d.CSV.ModifierPrefix),
			LineBreakToken: s.getString(keyCSVLineBreak, d.CSV.LineBreakToken),
		},
		Mutation: domain.MutationSettings{
			TargetPrefix:    s.configStore.GetString(keyTargetPrefix),
			SettleDelay:     s.getDuration(keySettleDelay, d.Mutation.SettleDelay),
			Tolerance:       s.getFloat(keyTolerance, d.Mutation.Tolerance),
			ContentAttempts: s.getInt(keyContentAttempts, d.Mutation.ContentAttempts),
		},
		Export: domain.ExportSettings{
			Formats:      s.getFormats(d.Export.Formats),
			FolderPrefix: s.getString(keyExportFolderPrefix, d.Export.FolderPrefix),
			FilePrefix:   s.configStore.GetString(keyExportFilePrefix),
			Probe:        s.getBool(keyExportProbe, d.Export.Probe),
		},
		Host: domain.HostSettings{
			CommandsPerSecond: s.getFloat(keyHostRate, d.Host.CommandsPerSecond),
			Burst:             s.getInt(keyHostBurst, d.Host.Burst),
		},
		Relay: domain.RelaySettings{
			Dir:    s.getString(keyRelayDir, d.Relay.Dir),
			Buffer: s.getInt(keyRelayBuffer, d.Relay.Buffer),
			S3: domain.S3Settings{
				Endpoint:  s.configStore.GetString(keyS3Endpoint),
				Region:    s.configStore.GetString(keyS3Region),
				Bucket:    s.configStore.GetString(keyS3Bucket),
				AccessKey: s.configStore.GetString(keyS3AccessKey),
				SecretKey: s.configStore.GetString(keyS3SecretKey),
				Prefix:    s.configStore.GetString(keyS3Prefix),
				UseSSL:    s.getBool(keyS3UseSSL, false),
			},
		},
	}

	return settings, nil
}

// Set parses value according to the key's type and stores it.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := kindOf(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var stored any
	switch kind {
	case kindString:
		stored = value
	case kindRune:
		if utf8.RuneCountInString(value) != 1 {
			return fmt.Errorf("%w: %s must be a single character", domain.ErrInvalidInput, key)
		}
		stored = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		stored = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		stored = f
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		stored = b
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration like 150ms", domain.ErrInvalidInput, key)
		}
		stored = d.String()
	case kindFormats:
		formats, unknown := domain.ParseFormats(strings.Split(value, ","))
		if len(unknown) > 0 {
			return fmt.Errorf("%w: unknown export formats %v", domain.ErrInvalidInput, unknown)
		}
		if len(formats) == 0 {
			return fmt.Errorf("%w: %s needs at least one format", domain.ErrInvalidInput, key)
		}
		names := make([]string, len(formats))
		for i, f := range formats {
			names[i] = string(f)
		}
		stored = names
	}

	if err := s.configStore.Set(key, stored); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Values renders the effective settings. Secrets are masked.
func (s *SettingsService) Values() (map[string]string, error) {
	st, err := s.Get()
	if err != nil {
		return nil, err
	}
	formats := make([]string, len(st.Export.Formats))
	for i, f := range st.Export.Formats {
		formats[i] = string(f)
	}
	return map[string]string{
		keyCSVDelimiter:       string(st.CSV.Delimiter),
		keyCSVContentPrefix:   st.CSV.ContentPrefix,
		keyCSVModifierPrefix:  st.CSV.ModifierPrefix,
		keyCSVLineBreak:       st.CSV.LineBreakToken,
		keyTargetPrefix:       st.Mutation.TargetPrefix,
		keySettleDelay:        st.Mutation.SettleDelay.String(),
		keyTolerance:          strconv.FormatFloat(st.Mutation.Tolerance, 'g', -1, 64),
		keyContentAttempts:    strconv.Itoa(st.Mutation.ContentAttempts),
		keyExportFormats:      strings.Join(formats, ","),
		keyExportFolderPrefix: st.Export.FolderPrefix,
		keyExportFilePrefix:   st.Export.FilePrefix,
		keyExportProbe:        strconv.FormatBool(st.Export.Probe),
		keyHostRate:           strconv.FormatFloat(st.Host.CommandsPerSecond, 'g', -1, 64),
		keyHostBurst:          strconv.Itoa(st.Host.Burst),
		keyRelayDir:           st.Relay.Dir,
		keyRelayBuffer:        strconv.Itoa(st.Relay.Buffer),
		keyS3Endpoint:         st.Relay.S3.Endpoint,
		keyS3Region:           st.Relay.S3.Region,
		keyS3Bucket:           st.Relay.S3.Bucket,
		keyS3AccessKey:        st.Relay.S3.AccessKey,
		keyS3SecretKey:        mask(st.Relay.S3.SecretKey),
		keyS3Prefix:           st.Relay.S3.Prefix,
		keyS3UseSSL:           strconv.FormatBool(st.Relay.S3.UseSSL),
	}, nil
}

// Keys returns every known setting key in display order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingKinds))
	for i, k := range settingKinds {
		keys[i] = k.key
	}
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func kindOf(key string) (valueKind, bool) {
	for _, k := range settingKinds {
		if k.key == key {
			return k.kind, true
		}
	}
	return 0, false
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getRune(key string, defaultVal rune) rune {
	r, size := utf8.DecodeRuneInString(s.configStore.GetString(key))
	if size == 0 || r == utf8.RuneError {
		return defaultVal
	}
	return r
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	val := s.configStore.GetInt(key)
	if val < 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	val := s.configStore.GetFloat(key)
	if val < 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getFormats(defaultVal []domain.ExportFormat) []domain.ExportFormat {
	names := s.configStore.GetStringSlice(keyExportFormats)
	if len(names) == 0 {
		return defaultVal
	}
	formats, _ := domain.ParseFormats(names)
	if len(formats) == 0 {
		return defaultVal
	}
	return formats
}
