package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"credvault/internal/api"
	"credvault/internal/config"
	"credvault/internal/models"
)

func newCatalogCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage persons, instructors, subjects, periods and credential types",
	}
	cmd.AddCommand(newCatalogImportCmd(cfg, jsonOutput))
	cmd.AddCommand(newCatalogTypesCmd(cfg, jsonOutput))
	return cmd
}

func newCatalogImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert reference entities from a YAML file (- reads stdin)",
		Args:  requireExactlyArgs(1, "catalog file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := readCatalogFile(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ImportCatalog(cmd.Context(), catalog)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("imported persons=%d instructors=%d subjects=%d periods=%d credential_types=%d\n",
					resp.Persons, resp.Instructors, resp.Subjects, resp.Periods, resp.CredentialTypes)
			})
		},
	}
}

func newCatalogTypesCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List credential types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				types, err := client.ListCredentialTypes(cmd.Context(), kind)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(types)
				}
				for _, ct := range types {
					if err := writePlain("%s\t%s\t%s\n", ct.ID, ct.Kind, ct.Name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by document or title")
	return cmd
}

func readCatalogFile(path string) (models.Catalog, error) {
	var catalog models.Catalog

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return catalog, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		if errors.Is(err, io.EOF) {
			return catalog, fmt.Errorf("catalog %s is empty", path)
		}
		return catalog, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return catalog, nil
}
