package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pneumonia-classifier/internal/core/usecase"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/security"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userAddCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Register a user",
		Long: `Register a user account. The password is read from --password, then from
PNEUMO_PASSWORD, then from the first line of stdin. Existing users are never
overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("PNEUMO_PASSWORD")
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			stores, err := openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores(stores)

			auth := usecase.NewAuthUseCase(stores.Credentials, security.NewBcryptHasher(cfg.BcryptCost))
			cred, err := auth.Register(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", cred.Username)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password for the new user")
	return cmd
}
