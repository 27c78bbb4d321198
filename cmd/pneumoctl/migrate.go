package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores(stores)
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
}
