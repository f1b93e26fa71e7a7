package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Manage application settings",
	Long: `View and change CSV parsing, mutation, export, pacing and relay settings.

Settings are stored in config.toml under the configuration directory.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting by its dotted key, for example:

  layerforge settings set export.formats png,psd
  layerforge settings set mutation.settle_delay 250ms`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Configure the S3 relay mirror",
	Long: `Prompt for the object-store endpoint, bucket and credentials that relay
events are mirrored to. Leave the endpoint empty to keep the current values.`,
	Args: cobra.NoArgs,
	RunE: runSettingsS3,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsS3Cmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service %w", errNotConfigured)
	}

	values, err := settingsService.Values()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")

	section := ""
	for _, key := range settingsService.Keys() {
		group, name, _ := strings.Cut(key, ".")
		if group != section {
			section = group
			cmd.Println()
			cmd.Printf("[%s]\n", strings.ToUpper(group[:1])+group[1:])
		}
		value := values[key]
		if value == "" {
			value = "(not set)"
		}
		cmd.Printf("  %-24s %s\n", name, value)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service %w", errNotConfigured)
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return err
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}

func runSettingsS3(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return fmt.Errorf("settings service %w", errNotConfigured)
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("S3 Relay Mirror")
	cmd.Println("---------------")
	cmd.Print("Endpoint (host:port): ")
	endpoint := readLine(reader)
	if endpoint == "" {
		cmd.Println("No endpoint given, S3 settings unchanged.")
		return nil
	}

	answers := [][2]string{{"relay.s3.endpoint", endpoint}}
	prompts := []struct {
		key, label string
	}{
		{"relay.s3.bucket", "Bucket"},
		{"relay.s3.region", "Region [us-east-1]"},
		{"relay.s3.prefix", "Key prefix"},
		{"relay.s3.access_key", "Access key"},
	}
	for _, p := range prompts {
		cmd.Printf("%s: ", p.label)
		answers = append(answers, [2]string{p.key, readLine(reader)})
	}

	cmd.Print("Secret key: ")
	secret := readPassword(cmd.InOrStdin(), reader)
	cmd.Println()
	answers = append(answers, [2]string{"relay.s3.secret_key", secret})

	cmd.Print("Use TLS? [y/N]: ")
	useSSL := strings.HasPrefix(strings.ToLower(readLine(reader)), "y")
	answers = append(answers, [2]string{"relay.s3.use_ssl", fmt.Sprint(useSSL)})

	for _, a := range answers {
		if a[1] == "" {
			continue
		}
		if err := settingsService.Set(a[0], a[1]); err != nil {
			return err
		}
	}

	cmd.Println(successStyle.Render("S3 mirror configured."))
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// readPassword reads without echo when in is a terminal.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	return readLine(reader)
}
