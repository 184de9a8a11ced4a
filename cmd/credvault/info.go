package main

import (
	"strings"

	"github.com/spf13/cobra"

	"credvault/internal/api"
	"credvault/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage backends and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("driver: %s\n", resp.Driver)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("blob_backend: %s\n", resp.BlobBackend)
				_ = writePlain("blobs: %d\n", resp.Blobs)
				_ = writePlain("documents: %d\n", resp.Documents)
				_ = writePlain("titles: %d\n", resp.Titles)
				return writePlain("contracts: %d\n", resp.Contracts)
			})
		},
	}
}

func newWhoAmICmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity the server resolves for this client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				me, err := client.WhoAmI(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(me)
				}
				if !me.Authenticated {
					return writePlain("anonymous (auth_required=%t)\n", me.AuthRequired)
				}
				name := firstNonEmpty(me.Username, "system")
				_ = writePlain("%s (%s via %s)\n", name, firstNonEmpty(me.Role, "admin"), me.AuthType)
				if me.PersonID != "" {
					_ = writePlain("person_id: %s\n", me.PersonID)
				}
				return writePlain("capabilities: %s\n", strings.Join(me.Capabilities, ", "))
			})
		},
	}
}
