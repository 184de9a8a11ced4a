package main

import (
	"context"
	"errors"
	"net"

	"credvault/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CREDVAULT_USER/CREDVAULT_PASSWORD or CREDVAULT_ADMIN_TOKEN.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; the server limits concurrent uploads, GC runs and failed logins.")
		case "blob_referenced":
			lines = append(lines, "hint: delete the referencing documents or titles first (see: credvault blob refs <sha256>).")
		case "overlap_detected":
			lines = append(lines, "hint: list the instructor's contracts with: credvault contract list <instructor-id>")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CREDVAULT_API_URL points to a credvault server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CREDVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a credvault server is running at CREDVAULT_API_URL.",
			"hint: start local server manually with: credvault srv",
			"hint: you can increase CREDVAULT_HTTP_TIMEOUT for slower environments.",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
