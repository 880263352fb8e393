package main

import (
	"fmt"

	"ariga.io/atlas-go-sdk/atlasexec"
	"github.com/spf13/cobra"

	"github.com/homesapp/rentals/internal/config"
	"github.com/homesapp/rentals/migrations"
)

func migrateCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the desired-state schema with the atlas CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			bin, _ := cmd.Flags().GetString("atlas")

			cfg, err := load()
			if err != nil {
				return err
			}
			client, err := atlasexec.NewClient(".", bin)
			if err != nil {
				return fmt.Errorf("initializing atlas client: %w", err)
			}
			res, err := client.SchemaApply(cmd.Context(), &atlasexec.SchemaApplyParams{
				URL:         cfg.Database.URL,
				To:          "file://" + migrations.SchemaPath,
				DevURL:      cfg.Database.DevURL,
				DryRun:      dryRun,
				AutoApprove: true,
			})
			if err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}

			if len(res.Changes.Pending) == 0 && len(res.Changes.Applied) == 0 {
				fmt.Println("Schema is up to date.")
				return nil
			}
			if dryRun {
				fmt.Println("Pending changes:")
				for _, stmt := range res.Changes.Pending {
					fmt.Printf("- %s\n", stmt)
				}
				return nil
			}
			fmt.Printf("Applied %d change(s).\n", len(res.Changes.Applied))
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "print the planned statements without applying them")
	cmd.Flags().String("atlas", "atlas", "path to the atlas binary")
	return cmd
}
