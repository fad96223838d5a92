package main

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// checkDownloader logs the version of the downloader binary so a missing or
// broken install shows up at startup rather than as failed jobs.
//
// It never stops the server: jobs fail individually when the binary is absent.
func checkDownloader(path string) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		slog.Warn("downloader not found, jobs will fail until it is installed", "path", path)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, resolved, "--version").Output()
	if err != nil {
		slog.Warn("downloader: version check failed", "path", resolved, "error", err)
		return
	}

	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	slog.Info("downloader ready", "path", resolved, "version", version)
}
