package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"testrunner/internal/adapter"
)

// captureForensics snapshots HTML and a screenshot for a blocked or fatal
// step, returning the written paths. Capture failures are logged, never fatal —
// a forensic miss must not itself fail the run.
func (o *Orchestrator) captureForensics(ctx context.Context, page *adapter.Page, reqID string, stepIdx int, reason string) []string {
	dir := o.Config.Store.ArtifactDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.Telemetry.Warn("forensics mkdir", err)
		return nil
	}

	var paths []string
	base := fmt.Sprintf("%s-step%d-%s", reqID, stepIdx, reason)

	if html, err := page.HTMLSnapshot(ctx); err == nil {
		path := filepath.Join(dir, base+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err == nil {
			paths = append(paths, path)
		} else {
			o.Telemetry.Warn("forensics write html", err)
		}
	} else {
		o.Telemetry.Warn("forensics html snapshot", err)
	}

	if png, err := page.Screenshot(ctx); err == nil {
		path := filepath.Join(dir, base+".png")
		if err := os.WriteFile(path, png, 0o644); err == nil {
			paths = append(paths, path)
		} else {
			o.Telemetry.Warn("forensics write screenshot", err)
		}
	} else {
		o.Telemetry.Warn("forensics screenshot", err)
	}

	return paths
}
