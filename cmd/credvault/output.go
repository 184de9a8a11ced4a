package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"credvault/internal/format"
	"credvault/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeBlobDetail(blob models.Blob) error {
	lines := []string{
		fmt.Sprintf("sha256: %s", blob.SHA256),
		fmt.Sprintf("id: %s", blob.ID),
		fmt.Sprintf("size_bytes: %d", blob.SizeBytes),
		fmt.Sprintf("media_type: %s", blob.MediaType),
		fmt.Sprintf("backend: %s", blob.StorageBackend),
		fmt.Sprintf("created_at: %s", formatTime(blob.CreatedAt)),
	}
	if blob.Filename != "" {
		lines = append(lines, fmt.Sprintf("filename: %s", blob.Filename))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeCredentialList(records []models.Credential) error {
	for _, record := range records {
		if err := writePlain("%s\n", formatCredentialLine(record)); err != nil {
			return err
		}
	}
	return nil
}

func writeCredentialDetail(record models.Credential) error {
	lines := []string{
		fmt.Sprintf("id: %s", record.ID),
		fmt.Sprintf("kind: %s", record.Kind),
		fmt.Sprintf("person_id: %s", record.PersonID),
		fmt.Sprintf("type: %s", firstNonEmpty(record.TypeName, record.TypeID)),
		fmt.Sprintf("state: %s", firstNonEmpty(record.StateName, string(record.State))),
		fmt.Sprintf("blob_sha256: %s", record.BlobSHA256),
		fmt.Sprintf("created_at: %s", formatTime(record.CreatedAt)),
	}
	if record.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", record.Description))
	}
	if record.Justification != nil {
		lines = append(lines, fmt.Sprintf("justification: %s", *record.Justification))
	}
	if record.DecidedBy != "" {
		lines = append(lines, fmt.Sprintf("decided_by: %s", record.DecidedBy))
	}
	if record.DecidedAt != nil {
		lines = append(lines, fmt.Sprintf("decided_at: %s", formatTime(*record.DecidedAt)))
	}
	if record.IsCurrent != nil {
		lines = append(lines, fmt.Sprintf("current: %t", *record.IsCurrent))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatCredentialLine(record models.Credential) string {
	marker := "○"
	if record.IsCurrent != nil && !*record.IsCurrent {
		marker = "·"
	}
	return fmt.Sprintf("%s %s [%s] %s - %s", marker, record.ID, record.State, record.PersonID, firstNonEmpty(record.TypeName, record.TypeID))
}

func writeContractList(contracts []models.Contract) error {
	for _, contract := range contracts {
		if err := writePlain("%s\n", formatContractLine(contract)); err != nil {
			return err
		}
	}
	return nil
}

func formatContractLine(contract models.Contract) string {
	end := "open"
	if contract.EndDate != nil {
		end = contract.EndDate.Format(models.DateLayout)
	}
	return fmt.Sprintf("%s %s..%s %s/%s %dh", contract.PublicID, contract.StartDate.Format(models.DateLayout), end, contract.SubjectID, contract.PeriodID, contract.HoursLoad)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
