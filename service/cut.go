package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"
	"narration-pipeline/config"
)

// cutSegment extracts [startMs, endMs) from sourcePath into destPath with
// stream copy, so the cut is timing-equivalent to playback of that range.
func cutSegment(ctx context.Context, cfg config.Pipeline, sourcePath, destPath string, startMs, endMs int64) error {
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", float64(startMs)/1000.0),
		"-t", fmt.Sprintf("%.3f", float64(endMs-startMs)/1000.0),
		"-i", sourcePath,
		"-c", "copy",
		destPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("cut cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg cut failed: %w, stderr: %s", err, stderr.String())
	}

	return nil
}

// segmentObjectPath names a cut segment file. The owning file id, segment
// index and version are all embedded, so a re-cut after a boundary edit
// lands on a new path and never overwrites audio referenced elsewhere.
func segmentObjectPath(audioFileId uuid.UUID, segmentIndex, version int) string {
	return fmt.Sprintf("segments/%s/seg_%03d_v%d.mp3", audioFileId, segmentIndex, version)
}
