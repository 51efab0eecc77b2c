package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"narration-pipeline/config"
)

// silenceInterval is one detected below-threshold stretch of the timeline.
type silenceInterval struct {
	startMs int64
	endMs   int64
}

// span is one interval of the final tiling, speech or silence.
type span struct {
	startMs int64
	endMs   int64
	silence bool
}

func silenceFilter(cfg config.Pipeline) string {
	return fmt.Sprintf("silencedetect=noise=%ddB:d=%g",
		cfg.SilenceThresholdDb,
		float64(cfg.MinSilenceMs)/1000.0,
	)
}

// detectSilences runs a silencedetect pass. ffmpeg reports intervals on
// stderr; the exit status is ignored because the null muxer makes ffmpeg
// exit non-zero on some builds.
func detectSilences(ctx context.Context, cfg config.Pipeline, path string) ([]silenceInterval, error) {
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath,
		"-i", path,
		"-af", silenceFilter(cfg),
		"-f", "null",
		"-hide_banner",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	_ = cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("silencedetect cancelled: %w", ctx.Err())
	}

	output := stderr.String()
	if !strings.Contains(output, "silence") && strings.Contains(output, "Invalid data") {
		return nil, fmt.Errorf("silencedetect failed: %s", output)
	}

	return parseSilenceOutput(output), nil
}

// parseSilenceOutput extracts silence_start/silence_end pairs from a
// silencedetect stderr dump, in milliseconds.
func parseSilenceOutput(output string) []silenceInterval {
	var intervals []silenceInterval
	scanner := bufio.NewScanner(strings.NewReader(output))

	var currentStart int64
	hasStart := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "silence_start:") {
			parts := strings.Split(line, "silence_start:")
			if len(parts) > 1 {
				if fields := strings.Fields(parts[1]); len(fields) > 0 {
					if val, err := strconv.ParseFloat(fields[0], 64); err == nil {
						currentStart = secondsToMs(val)
						hasStart = true
					}
				}
			}
		}

		if strings.Contains(line, "silence_end:") && hasStart {
			parts := strings.Split(line, "silence_end:")
			if len(parts) > 1 {
				if fields := strings.Fields(parts[1]); len(fields) > 0 {
					if val, err := strconv.ParseFloat(fields[0], 64); err == nil {
						intervals = append(intervals, silenceInterval{
							startMs: currentStart,
							endMs:   secondsToMs(val),
						})
						hasStart = false
					}
				}
			}
		}
	}

	return intervals
}

func secondsToMs(s float64) int64 {
	return int64(math.Round(s * 1000))
}

// normalizeSilences sorts, clamps to [0, durationMs], drops empty intervals
// and merges those closer together than gapMs so adjacent barely-separated
// silences do not flap into micro speech segments.
func normalizeSilences(intervals []silenceInterval, durationMs, gapMs int64) []silenceInterval {
	var clamped []silenceInterval
	for _, iv := range intervals {
		if iv.startMs < 0 {
			iv.startMs = 0
		}
		if iv.endMs > durationMs {
			iv.endMs = durationMs
		}
		if iv.endMs > iv.startMs {
			clamped = append(clamped, iv)
		}
	}
	sort.Slice(clamped, func(i, j int) bool { return clamped[i].startMs < clamped[j].startMs })

	var merged []silenceInterval
	for _, iv := range clamped {
		if n := len(merged); n > 0 && iv.startMs-merged[n-1].endMs <= gapMs {
			if iv.endMs > merged[n-1].endMs {
				merged[n-1].endMs = iv.endMs
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// buildTimeline complements the silence intervals against [0, durationMs]
// and interleaves speech and silence chronologically. The result tiles the
// whole timeline: spans[0].startMs == 0, each span ends where the next
// starts, the last span ends at durationMs. With no silences the whole file
// is one speech span; with wall-to-wall silence it is one silence span.
func buildTimeline(silences []silenceInterval, durationMs int64) []span {
	if durationMs <= 0 {
		return nil
	}

	var spans []span
	cursor := int64(0)
	for _, iv := range silences {
		if iv.startMs > cursor {
			spans = append(spans, span{startMs: cursor, endMs: iv.startMs})
		}
		spans = append(spans, span{startMs: iv.startMs, endMs: iv.endMs, silence: true})
		cursor = iv.endMs
	}
	if cursor < durationMs {
		spans = append(spans, span{startMs: cursor, endMs: durationMs})
	}
	return spans
}
