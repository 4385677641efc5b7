package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/xjectro/actionkit/cmd/actionctl/commands"
	"github.com/xjectro/actionkit/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "actionctl",
	Short: "Call declarative HTTP actions",
	Long: `A command-line interface for calling the HTTP actions described in an
action catalog.

Actions are loaded from a YAML or JSON catalog, called against the configured
base URL, and invalidate their cache tags after every successful call.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.actionkit/config.yml)")
	rootCmd.PersistentFlags().StringP("base-url", "b", "", "base URL prepended to every endpoint")
	rootCmd.PersistentFlags().String("catalog", "", "action catalog file (YAML or JSON)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "per-call timeout (default 30s)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	// Bind flags to viper
	bindFlag(config.KeyBaseURL, "base-url")
	bindFlag(config.KeyCatalog, "catalog")
	bindFlag(config.KeyOutput, "output")
	bindFlag(config.KeyTimeout, "timeout")
	bindFlag(config.KeyDebug, "verbose")
	bindFlag(config.KeyNoColor, "no-color")

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewCallCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewInvalidateCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
}

func bindFlag(key, flag string) {
	err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	if err != nil {
		panic(err)
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")

	used, err := config.Init(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if viper.GetBool(config.KeyNoColor) || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	if used != "" && viper.GetBool(config.KeyDebug) {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
