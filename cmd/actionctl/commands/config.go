package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xjectro/actionkit/internal/config"
	"github.com/xjectro/actionkit/internal/constants"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect CLI configuration",
		Long:  "Inspect the configuration resolved from the config file, environment and flags",
	}

	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			redacted := settings.Redacted()

			switch settings.Output {
			case constants.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), redacted)
			case constants.FormatYAML:
				return writeYAML(cmd.OutOrStdout(), redacted)
			default:
				return displayConfigTable(cmd, &redacted)
			}
		},
	}
}

// configRows flattens settings into display rows keyed by setting name.
func configRows(settings *config.Settings) [][2]string {
	valueOr := func(value string) string {
		if value == "" {
			return constants.NotAvailable
		}

		return value
	}

	timeout := constants.None
	if settings.Timeout > 0 {
		timeout = settings.Timeout.Round(time.Millisecond).String()
	}

	rows := [][2]string{
		{config.KeyBaseURL, valueOr(settings.BaseURL)},
		{config.KeyTimeout, timeout},
		{config.KeyUserAgent, valueOr(settings.UserAgent)},
		{config.KeyToken, valueOr(settings.Token)},
		{config.KeyDebug, fmt.Sprintf("%t", settings.Debug)},
		{config.KeyCatalog, valueOr(settings.Catalog)},
		{config.KeyOutput, settings.Output},
		{config.KeyCacheType, settings.Cache.Type},
		{config.KeyCacheMaxSize, fmt.Sprintf("%d", settings.Cache.MaxSize)},
		{config.KeyNATSURL, valueOr(settings.Cache.NATS.URL)},
		{config.KeyNATSSubject, valueOr(settings.Cache.NATS.Subject)},
		{config.KeyLogLevel, settings.Log.Level},
		{config.KeyLogFormat, settings.Log.Format},
	}

	headerNames := make([]string, 0, len(settings.Headers))
	for name := range settings.Headers {
		headerNames = append(headerNames, name)
	}

	sort.Strings(headerNames)

	for _, name := range headerNames {
		rows = append(rows, [2]string{config.KeyHeaders + "." + name, settings.Headers[name]})
	}

	return rows
}

func displayConfigTable(cmd *cobra.Command, settings *config.Settings) error {
	title := cases.Title(language.English)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Property", "Key", "Value")

	for _, row := range configRows(settings) {
		label := title.String(strings.NewReplacer("_", " ", ".", " ").Replace(row[0]))
		_ = table.Append(label, row[0], row[1])
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
