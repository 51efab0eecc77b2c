package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"narration-pipeline/config"
	"narration-pipeline/entities"
)

// decodeSampleRate is the mono PCM rate the analyzer decodes to. 8 kHz is
// plenty for an amplitude envelope and keeps the buffer small.
const decodeSampleRate = 8000

// segmentPeakBuckets sizes the per-segment envelope; segments are short, so
// they get a coarser grid than the whole file.
const segmentPeakBuckets = 100

// analysis is the output of one successful analyzer pass. Duration and
// peaks are produced together or not at all.
type analysis struct {
	durationMs int64
	peaks      entities.Peaks
	samples    []int16
}

func analyzeAudio(ctx context.Context, cfg config.Pipeline, sourcePath string) (*analysis, error) {
	durationMs, err := probeDurationFn(ctx, cfg, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	if durationMs <= 0 {
		return nil, fmt.Errorf("source has zero playable duration")
	}

	samples, err := decodeSamplesFn(ctx, cfg, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}

	return &analysis{
		durationMs: durationMs,
		peaks:      computePeaks(samples, cfg.PeakBuckets),
		samples:    samples,
	}, nil
}

// probeDurationMs reads the container duration with ffprobe, millisecond
// precision.
func probeDurationMs(ctx context.Context, cfg config.Pipeline, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", stdout.String(), err)
	}

	return int64(math.Round(seconds * 1000)), nil
}

// decodeSamples decodes the whole stream to little-endian signed 16-bit
// mono PCM at decodeSampleRate.
func decodeSamples(ctx context.Context, cfg config.Pipeline, path string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath,
		"-v", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(decodeSampleRate),
		"-f", "s16le",
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, stderr.String())
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// computePeaks partitions samples into buckets equal-duration buckets and
// takes the max absolute amplitude per bucket, normalized to [0, 1]. The
// envelope length is fixed regardless of input duration, and identical
// input bytes always produce identical output.
func computePeaks(samples []int16, buckets int) entities.Peaks {
	return computePeaksRange(samples, 0, len(samples), buckets)
}

// computePeaksRange computes the envelope over samples[from:to).
func computePeaksRange(samples []int16, from, to, buckets int) entities.Peaks {
	if buckets <= 0 {
		return nil
	}
	if from < 0 {
		from = 0
	}
	if to > len(samples) {
		to = len(samples)
	}

	peaks := make(entities.Peaks, buckets)
	n := to - from
	if n <= 0 {
		return peaks
	}

	for b := 0; b < buckets; b++ {
		lo := from + b*n/buckets
		hi := from + (b+1)*n/buckets
		var peak int32
		for i := lo; i < hi; i++ {
			v := int32(samples[i])
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		peaks[b] = math.Round(float64(peak)/32768*10000) / 10000
	}
	return peaks
}

// sampleIndexAt maps a timeline position to a decoded sample index.
func sampleIndexAt(ms int64) int {
	return int(ms * decodeSampleRate / 1000)
}
