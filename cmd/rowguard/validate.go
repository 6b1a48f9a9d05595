package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"openboard/rowguard/pkg/cli"
	"openboard/rowguard/pkg/rls/store"
)

var validateFlags struct {
	file string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy bundle",
	Long: `Parse and validate a YAML policy bundle without starting the server.

The bundle is checked the same way the file store checks it at startup:
every policy's condition tree, operators, filter types, and role
references must be valid.

Examples:
  # Validate a bundle
  rowguard validate --file policies.yaml`,
	RunE: validateBundle,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "policies.yaml", "policy bundle path")
}

func validateBundle(cmd *cobra.Command, args []string) error {
	st, err := store.NewStaticFileStore(validateFlags.file, nil)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	defer st.Close()

	ctx := context.Background()
	policies, err := st.ListPolicies(ctx)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	roles, err := st.ListRoles(ctx)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	enabled := 0
	for i := range policies {
		if policies[i].Enabled {
			enabled++
		}
	}

	fmt.Printf("✓ Bundle valid: %s\n", validateFlags.file)
	fmt.Printf("  Policies: %d (%d enabled)\n", len(policies), enabled)
	fmt.Printf("  Roles:    %d\n", len(roles))
	return nil
}
