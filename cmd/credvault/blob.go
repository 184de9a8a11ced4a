package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"credvault/internal/api"
	"credvault/internal/config"
)

func newBlobCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Upload, inspect and release stored files",
	}
	cmd.AddCommand(
		newBlobUploadCmd(cfg, jsonOutput),
		newBlobGetCmd(cfg, jsonOutput),
		newBlobDownloadCmd(cfg),
		newBlobRefsCmd(cfg, jsonOutput),
		newBlobDeleteCmd(cfg, jsonOutput),
		newBlobGCCmd(cfg, jsonOutput),
	)
	return cmd
}

func newBlobUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var mediaType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload one file; identical content is reported as a duplicate",
		Args:  requireExactlyArgs(1, "file path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if mediaType == "" {
				mediaType = detectMediaType(path, content)
			}

			return withClient(cfg, func(client *api.Client) error {
				blob, err := client.UploadBlob(cmd.Context(), bytes.NewReader(content), filepath.Base(path), mediaType)
				if err != nil {
					var apiErr *api.APIError
					if errors.As(err, &apiErr) && apiErr.Code == "duplicate_blob" {
						sha, _ := apiErr.Details["sha256"].(string)
						return fmt.Errorf("%w (existing sha256 %s)", err, sha)
					}
					return err
				}
				if *jsonOutput {
					return writeJSON(blob)
				}
				return writePlain("stored %s (%d bytes, %s)\n", blob.SHA256, blob.SizeBytes, blob.MediaType)
			})
		},
	}

	cmd.Flags().StringVar(&mediaType, "media-type", "", "media type (default: detected from extension or content)")
	return cmd
}

func newBlobGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get <sha256>",
		Short: "Show one blob descriptor",
		Args:  requireExactlyArgs(1, "sha256 is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				blob, err := client.GetBlob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(blob)
				}
				return writeBlobDetail(blob)
			})
		},
	}
}

func newBlobDownloadCmd(cfg *config.Config) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <sha256>",
		Short: "Write blob content to a file or stdout",
		Args:  requireExactlyArgs(1, "sha256 is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				var w io.Writer = stdout
				if outPath != "" && outPath != "-" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return client.DownloadBlob(cmd.Context(), args[0], w)
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "O", "", "output file (default stdout)")
	return cmd
}

func newBlobRefsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "refs <sha256>",
		Short: "Count documents and titles that reference a blob",
		Args:  requireExactlyArgs(1, "sha256 is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.BlobReferences(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s: %d reference(s)\n", resp.SHA256, resp.References)
			})
		},
	}
}

func newBlobDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <sha256>",
		Aliases: []string{"rm"},
		Short:   "Delete a blob that nothing references",
		Args:    requireExactlyArgs(1, "sha256 is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				blob, err := client.DeleteBlob(cmd.Context(), args[0])
				if err != nil {
					var apiErr *api.APIError
					if errors.As(err, &apiErr) {
						if refs, ok := apiErr.References(); ok {
							return fmt.Errorf("blob %s is still referenced by %d record(s)", args[0], refs)
						}
					}
					return err
				}
				if *jsonOutput {
					return writeJSON(blob)
				}
				return writePlain("deleted blob %s\n", blob.SHA256)
			})
		},
	}
}

func newBlobGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove unreferenced blobs and orphan objects (dry run unless --apply)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GCBlobs(cmd.Context(), apply, batchSize)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				return writePlain("%s: rows=%d/%d objects=%d/%d skipped_foreign=%d failed=%d reclaimed_bytes=%d\n",
					mode, resp.RowsDeleted, resp.RowCandidates, resp.ObjectsDeleted, resp.ObjectCandidates, resp.ForeignObjects, resp.FailedCount, resp.ReclaimedBytes)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete candidates instead of reporting them")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per batch (default: server gc_batch_size)")
	return cmd
}

func detectMediaType(path string, content []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			return parsed
		}
	}
	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(content))
	if err != nil {
		return "application/octet-stream"
	}
	return sniffed
}
