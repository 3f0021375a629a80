package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage billing accounts and API keys",
	}
	cmd.AddCommand(newAccountsCreateCmd())
	return cmd
}

func newAccountsCreateCmd() *cobra.Command {
	var (
		userID  string
		plan    string
		keyName string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create (or update) an account and issue an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := e.catalog.Limits(plan); err != nil {
				return err
			}
			if err := e.db.UpsertAccount(ctx, models.Account{UserID: userID, Plan: plan}); err != nil {
				return err
			}
			key, err := e.db.CreateAPIKey(ctx, userID, keyName)
			if err != nil {
				return err
			}

			fmt.Printf("Account %s on plan %q\n", userID, plan)
			fmt.Printf("API key (shown once): %s\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&plan, "plan", "", "plan name (empty for the default plan)")
	cmd.Flags().StringVar(&keyName, "key-name", "default", "label for the API key")
	cmd.MarkFlagRequired("user")
	return cmd
}
