package domain

import (
	"os"
	"path/filepath"
	"time"
)

// Settings holds every tunable of the batch pipeline.
type Settings struct {
	CSV      CSVSettings
	Mutation MutationSettings
	Export   ExportSettings
	Host     HostSettings
	Relay    RelaySettings
}

// CSVSettings controls how CSV text maps onto rows and targets.
type CSVSettings struct {
	// Delimiter separates fields.
	Delimiter rune

	// ContentPrefix names content columns (content1, content2, ...).
	ContentPrefix string

	// ModifierPrefix names numeric size columns (modifier1, ...).
	ModifierPrefix string

	// LineBreakToken is expanded to a hard line break in content.
	LineBreakToken string
}

// MutationSettings controls layer mutation and verification.
type MutationSettings struct {
	// TargetPrefix restricts target layers to names starting with it.
	// Empty matches any text layer whose name ends with the index.
	TargetPrefix string

	// SettleDelay is waited after each write before verification.
	SettleDelay time.Duration

	// Tolerance is the accepted difference when verifying a size.
	Tolerance float64

	// ContentAttempts bounds text write retries.
	ContentAttempts int
}

// ExportSettings controls the output layout.
type ExportSettings struct {
	Formats      []ExportFormat
	FolderPrefix string
	FilePrefix   string
	Probe        bool
}

// HostSettings paces host command execution.
type HostSettings struct {
	// CommandsPerSecond limits the command rate; 0 disables pacing.
	CommandsPerSecond float64
	Burst             int
}

// RelaySettings controls the side channel.
type RelaySettings struct {
	Dir    string
	Buffer int
	S3     S3Settings
}

// S3Settings configures the optional object-store mirror.
type S3Settings struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether the mirror is configured.
func (s S3Settings) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		CSV: CSVSettings{
			Delimiter:      ',',
			ContentPrefix:  "content",
			ModifierPrefix: "modifier",
			LineBreakToken: "|br|",
		},
		Mutation: MutationSettings{
			SettleDelay:     150 * time.Millisecond,
			Tolerance:       0.1,
			ContentAttempts: 2,
		},
		Export: ExportSettings{
			Formats:      []ExportFormat{FormatPNG},
			FolderPrefix: "Export",
			Probe:        true,
		},
		Host: HostSettings{
			CommandsPerSecond: 0,
			Burst:             1,
		},
		Relay: RelaySettings{
			Dir:    DefaultRelayDir(),
			Buffer: 64,
		},
	}
}

// DefaultRelayDir returns the relay directory under the OS temp folder.
func DefaultRelayDir() string {
	return filepath.Join(os.TempDir(), "layerforge", "relay")
}
