package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"credvault/internal/api"
	"credvault/internal/config"
)

func newContractCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Create and inspect instructor contracts",
	}
	cmd.AddCommand(
		newContractCreateCmd(cfg, jsonOutput),
		newContractGetCmd(cfg, jsonOutput),
		newContractListCmd(cfg, jsonOutput),
		newContractDeleteCmd(cfg, jsonOutput),
	)
	return cmd
}

func newContractCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var req api.ContractCreateRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract; fails when it overlaps an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				contract, err := client.CreateContract(cmd.Context(), req)
				if err != nil {
					var apiErr *api.APIError
					if errors.As(err, &apiErr) && apiErr.Code == "overlap_detected" {
						return fmt.Errorf("%w (instructor %s already has a contract in that range)", err, req.InstructorID)
					}
					return err
				}
				if *jsonOutput {
					return writeJSON(contract)
				}
				return writePlain("created contract %s\n", contract.PublicID)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.InstructorID, "instructor", "", "instructor id (required)")
	flags.StringVar(&req.PersonID, "person", "", "person id (required)")
	flags.StringVar(&req.SubjectID, "subject", "", "subject id (required)")
	flags.StringVar(&req.PeriodID, "period", "", "academic period id (required)")
	flags.IntVar(&req.HoursLoad, "hours", 0, "hour load")
	flags.Int64Var(&req.HourlyRateCents, "rate-cents", 0, "hourly rate in cents")
	flags.StringVar(&req.StartDate, "start", "", "start date YYYY-MM-DD (required)")
	flags.StringVar(&req.EndDate, "end", "", "exclusive end date YYYY-MM-DD (empty: open-ended)")
	return cmd
}

func newContractGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get <public-id>",
		Short: "Show one contract",
		Args:  requireExactlyArgs(1, "public id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				contract, err := client.GetContract(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(contract)
				}
				return writePlain("%s\n", formatContractLine(contract))
			})
		},
	}
}

func newContractListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <instructor-id>",
		Short: "List an instructor's contracts by start date",
		Args:  requireExactlyArgs(1, "instructor id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				contracts, err := client.ListContracts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(contracts)
				}
				return writeContractList(contracts)
			})
		},
	}
}

func newContractDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <public-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a contract",
		Args:    requireExactlyArgs(1, "public id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				contract, err := client.DeleteContract(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(contract)
				}
				return writePlain("deleted contract %s\n", contract.PublicID)
			})
		},
	}
}
