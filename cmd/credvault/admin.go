package main

import (
	"github.com/spf13/cobra"

	"credvault/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	cmd.AddCommand(newAdminUserCmd(cfg, jsonOutput))
	return cmd
}
