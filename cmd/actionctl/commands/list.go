package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xjectro/actionkit/internal/config"
	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog actions",
		Long:    "List the actions defined in the configured catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			cat, err := loadCatalog(viper.GetString(config.KeyCatalog))
			if err != nil {
				return err
			}

			switch format {
			case constants.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), cat)
			case constants.FormatYAML:
				return writeYAML(cmd.OutOrStdout(), cat)
			}

			if len(cat.Actions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No actions found")

				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Name", "Method", "Endpoint", "Tags", "Cache")

			for _, name := range cat.Names() {
				entry, err := cat.Lookup(name)
				if err != nil {
					return err
				}

				method, _ := action.ParseMethod(entry.Method)

				cache := constants.None
				if entry.Cache != nil {
					ttl := entry.Cache.TTL
					if ttl == 0 {
						ttl = constants.DefaultCacheTTL
					}

					cache = ttl.String()
				}

				tags := constants.None
				if len(entry.Tags) > 0 {
					tags = strings.Join(entry.Tags, ", ")
				}

				_ = table.Append(entry.Name, string(method), entry.Endpoint, tags, cache)
			}

			if err := table.Render(); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}

			return nil
		},
	}
}
