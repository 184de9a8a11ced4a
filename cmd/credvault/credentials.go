package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"credvault/internal/api"
	"credvault/internal/config"
	"credvault/internal/models"
)

// newCredentialCmd builds the "doc" or "title" command tree.
func newCredentialCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	use := string(kind)
	if kind == models.KindDocument {
		use = "doc"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Submit and review %s", kind.Plural()),
	}
	cmd.AddCommand(
		newCredentialCreateCmd(cfg, jsonOutput, kind),
		newCredentialGetCmd(cfg, jsonOutput, kind),
		newCredentialListCmd(cfg, jsonOutput, kind),
		newCredentialDecideCmd(cfg, jsonOutput, kind),
		newCredentialDeleteCmd(cfg, jsonOutput, kind),
	)
	return cmd
}

func newCredentialCreateCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	var req api.CredentialCreateRequest
	var filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Submit a %s for review", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" && req.BlobSHA256 == "" {
				return fmt.Errorf("one of --file or --blob is required")
			}
			if filePath != "" && req.BlobSHA256 != "" {
				return fmt.Errorf("--file and --blob are mutually exclusive")
			}

			return withClient(cfg, func(client *api.Client) error {
				if filePath != "" {
					sha, err := uploadForCredential(cmd, client, filePath)
					if err != nil {
						return err
					}
					req.BlobSHA256 = sha
				}
				record, err := client.CreateCredential(cmd.Context(), kind, req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(record)
				}
				return writePlain("created %s %s (%s)\n", kind, record.ID, record.State)
			})
		},
	}

	cmd.Flags().StringVar(&req.PersonID, "person", "", "person id (required)")
	cmd.Flags().StringVar(&req.TypeID, "type", "", "credential type id (required)")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "free-text description")
	cmd.Flags().StringVar(&req.BlobSHA256, "blob", "", "sha256 of an already uploaded blob")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "upload this file and reference it")
	return cmd
}

// uploadForCredential uploads path and returns its digest. Content already on
// the server is reused.
func uploadForCredential(cmd *cobra.Command, client *api.Client, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	blob, err := client.UploadBlob(cmd.Context(), bytes.NewReader(content), filepath.Base(path), detectMediaType(path, content))
	if err == nil {
		return blob.SHA256, nil
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Code == "duplicate_blob" {
		if sha, ok := apiErr.Details["sha256"].(string); ok && sha != "" {
			return sha, nil
		}
	}
	return "", err
}

func newCredentialGetCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: fmt.Sprintf("Show one %s", kind),
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				record, err := client.GetCredential(cmd.Context(), kind, args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(record)
				}
				return writeCredentialDetail(record)
			})
		},
	}
}

func newCredentialListCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	return &cobra.Command{
		Use:   "list <person-id>",
		Short: fmt.Sprintf("List a person's %s", kind.Plural()),
		Args:  requireExactlyArgs(1, "person id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				records, err := client.ListCredentials(cmd.Context(), kind, args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(records)
				}
				return writeCredentialList(records)
			})
		},
	}
}

func newCredentialDecideCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	var req api.DecisionRequest

	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: fmt.Sprintf("Approve, reject or observe a %s", kind),
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.State = strings.ToLower(strings.TrimSpace(req.State))
			return withClient(cfg, func(client *api.Client) error {
				record, err := client.DecideCredential(cmd.Context(), kind, args[0], req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(record)
				}
				return writePlain("%s %s is now %s\n", kind, record.ID, firstNonEmpty(record.StateName, string(record.State)))
			})
		},
	}

	cmd.Flags().StringVarP(&req.State, "state", "s", "", "approved, rejected or observed (required)")
	cmd.Flags().StringVarP(&req.Justification, "justification", "j", "", "reason; required for rejected and observed")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newCredentialDeleteCmd(cfg *config.Config, jsonOutput *bool, kind models.CredentialKind) *cobra.Command {
	var releaseBlob bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   fmt.Sprintf("Delete a %s", kind),
		Args:    requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteCredential(cmd.Context(), kind, args[0], releaseBlob)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writePlain("deleted %s %s\n", kind, resp.Credential.ID); err != nil {
					return err
				}
				switch {
				case resp.BlobReleased:
					return writePlain("released blob %s\n", resp.Credential.BlobSHA256)
				case releaseBlob:
					return writePlain("blob %s kept (%d reference(s))\n", resp.Credential.BlobSHA256, resp.BlobReferences)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&releaseBlob, "release-blob", false, "also delete the blob when nothing else references it")
	return cmd
}
