package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/urlqueue/urlqueue/internal/job"
)

// Hooks receive the downloader's output while it runs. Either may be nil.
type Hooks struct {
	// OnLine is called for every non-empty output line that is not metadata.
	OnLine func(line string)
	// OnPreview is called when the downloader prints the media metadata as JSON.
	OnPreview func(p job.Preview)
}

// Run executes the downloader for url and returns the last line it printed,
// which is the path of the downloaded file.
func Run(ctx context.Context, path string, args []string, url string, hooks Hooks) (string, error) {
	argv := append(append([]string{}, args...), url)
	cmd := exec.CommandContext(ctx, path, argv...)
	cmd.Env = filteredEnv()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start downloader: %w", err)
	}

	var last string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if p, ok := parsePreview(line); ok {
			if hooks.OnPreview != nil {
				hooks.OnPreview(p)
			}
			continue
		}
		last = line
		if hooks.OnLine != nil {
			hooks.OnLine(line)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = last
		}
		return "", fmt.Errorf("downloader exited: %w: %s", err, detail)
	}
	if scanErr != nil {
		return "", fmt.Errorf("read downloader output: %w", scanErr)
	}
	if last == "" {
		return "", fmt.Errorf("downloader printed no output")
	}
	return last, nil
}

// filteredEnv returns os.Environ() without the server's own URLQUEUE_ variables.
func filteredEnv() []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, "URLQUEUE_") {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// parsePreview recognizes the info JSON printed by yt-dlp's --print-json.
func parsePreview(line string) (job.Preview, bool) {
	if !strings.HasPrefix(line, "{") {
		return job.Preview{}, false
	}
	var info struct {
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
	}
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return job.Preview{}, false
	}
	if info.Title == "" && info.Thumbnail == "" {
		return job.Preview{}, false
	}
	return job.Preview{Title: info.Title, ThumbnailURL: info.Thumbnail}, true
}
