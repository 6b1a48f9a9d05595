package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rowguard",
	Short: "Rowguard - row-level security policy engine",
	Long: `Rowguard is a row-level security policy engine for database access.

It resolves per-user SQL filter predicates from administrator-authored
policies, providing:
  - Role-scoped policies with static, dynamic, and expression filters
  - OR-combination of independent policy grants per table
  - Cached filter decisions with generation-based invalidation
  - Audit-mode evaluation and persisted access records
  - HTTP API for evaluation and policy administration`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Accept snake_case flag spellings (--denied_only == --denied-only).
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}
