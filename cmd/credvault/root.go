package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"credvault/internal/config"
	"credvault/internal/format"
	"credvault/internal/models"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput   bool
		outputFormat string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:           "credvault",
		Short:         "Credvault keeps HR credential files, their verification state and instructor contracts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			formatter, err := format.ByName(outputFormat)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			if cmd.Flags().Changed("output") {
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "structured output format (json or yaml); implies --json")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newInfoCmd(cfg, &jsonOutput),
		newWhoAmICmd(cfg, &jsonOutput),
		newBlobCmd(cfg, &jsonOutput),
		newCredentialCmd(cfg, &jsonOutput, models.KindDocument),
		newCredentialCmd(cfg, &jsonOutput, models.KindTitle),
		newContractCmd(cfg, &jsonOutput),
		newCatalogCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
	)

	return cmd
}
