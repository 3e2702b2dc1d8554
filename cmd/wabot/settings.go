package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"wabot/internal/app"
)

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the persisted settings row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.ReadSettings(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}
