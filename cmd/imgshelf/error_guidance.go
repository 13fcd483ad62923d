package main

import (
	"context"
	"errors"
	"net"

	"imgshelf/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "validation_error":
			lines = append(lines, "hint: uploads must be a single image file under the server's size limit.")
		case "rate_limited":
			lines = append(lines, "hint: the server is throttling uploads; retry shortly.")
		}
		if apiErr.Code == "" && apiErr.Status != 404 {
			lines = append(lines, "hint: verify IMGSHELF_API_URL points to an imgshelf server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase IMGSHELF_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an imgshelf server is running at IMGSHELF_API_URL.",
			"hint: start one with: imgshelf serve",
		)
		return uniqueLines(lines)
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
