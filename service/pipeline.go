package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"narration-pipeline/config"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/audit"
	"narration-pipeline/repository"
)

// ObjectStore is what the pipeline needs from the media store.
type ObjectStore interface {
	Put(ctx context.Context, objectPath, localPath string) error
	Fetch(ctx context.Context, objectPath, localPath string) error
	Remove(ctx context.Context, objectPath string) error
	URL(objectPath string) string
}

// PipelineService owns the AudioFile state machine. Runs against the same
// file are serialized through a row-level lock plus the PROCESSING status
// guard, which holds across service instances; runs against distinct files
// proceed in parallel, bounded by the worker pool.
type PipelineService interface {
	Process(ctx context.Context, message dto.ProcessMessage) (*dto.ProcessResult, error)
	Cut(ctx context.Context, message dto.CutMessage) (*dto.CutResult, error)
}

type pipelineService struct {
	repo  repository.AudioRepository
	cfg   *config.Config
	store ObjectStore
	sink  audit.Sink
	slots chan struct{}
}

func NewPipelineService(repo repository.AudioRepository, cfg *config.Config, store ObjectStore, sink audit.Sink) PipelineService {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}
	return &pipelineService{
		repo:  repo,
		cfg:   cfg,
		store: store,
		sink:  sink,
		slots: make(chan struct{}, workers),
	}
}

// acquireSlot blocks until a worker slot is free; the decode and cut stages
// are the only blocking work and all of it runs inside a slot.
func (s *pipelineService) acquireSlot(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pipelineService) releaseSlot() {
	<-s.slots
}

// claimForProcessing moves the file into PROCESSING under a row lock.
// A file already in PROCESSING belongs to another run and is rejected.
func (s *pipelineService) claimForProcessing(ctx context.Context, id uuid.UUID, forCutting bool) (*entities.AudioFile, error) {
	var file *entities.AudioFile
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		var err error
		file, err = s.repo.FindAudioFileForUpdate(ctx, id)
		if err != nil {
			return wrapNotFound(err, fmt.Sprintf("audio file %s", id))
		}

		if file.Status == constant.AudioStatusProcessing {
			return ErrAlreadyProcessing
		}
		if forCutting && !file.Status.CanStartCutting() {
			return fmt.Errorf("%w: file has no segment set yet", ErrValidation)
		}
		if !forCutting && !file.Status.CanStartProcessing() {
			return fmt.Errorf("%w: file cannot be processed in status %s", ErrValidation, file.Status)
		}

		if forCutting {
			count, err := s.repo.CountNonSilenceSegments(ctx, id)
			if err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: no non-silence segments to cut", ErrValidation)
			}
		}

		return s.repo.UpdateAudioFile(ctx, id, map[string]interface{}{
			"status": constant.AudioStatusProcessing,
		})
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// markError records a truncated stage failure and parks the file in ERROR.
// Stage failures never escape as-is; the caller gets ErrProcessingFailed.
func (s *pipelineService) markError(ctx context.Context, id uuid.UUID, stageErr error) error {
	msg := truncateErrorMessage(stageErr.Error())
	zerolog.Ctx(ctx).Error().Err(stageErr).Str("audio_file_id", id.String()).Msg("pipeline stage failed")

	updateErr := s.repo.UpdateAudioFile(ctx, id, map[string]interface{}{
		"status":        constant.AudioStatusError,
		"error_message": msg,
	})
	if updateErr != nil {
		zerolog.Ctx(ctx).Error().Err(updateErr).Str("audio_file_id", id.String()).Msg("failed to record error state")
	}
	return fmt.Errorf("%w: %s", ErrProcessingFailed, msg)
}

func (s *pipelineService) Process(ctx context.Context, message dto.ProcessMessage) (*dto.ProcessResult, error) {
	zerolog.Ctx(ctx).Info().Str("audio_file_id", message.AudioFileId.String()).Msg("processing audio file")

	file, err := s.claimForProcessing(ctx, message.AudioFileId, false)
	if err != nil {
		return nil, err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}
	defer s.releaseSlot()

	tempDir := filepath.Join("temp", file.ID.String())
	defer os.RemoveAll(tempDir)
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	localPath := filepath.Join(tempDir, filepath.Base(file.FilePath))
	zerolog.Ctx(ctx).Info().Str("object", file.FilePath).Msg("downloading source file")
	if err := s.store.Fetch(ctx, file.FilePath, localPath); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	result, err := analyzeAudio(ctx, s.cfg.Pipeline, localPath)
	if err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	rawSilences, err := detectSilencesFn(ctx, s.cfg.Pipeline, localPath)
	if err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	silences := normalizeSilences(rawSilences, result.durationMs, s.cfg.Pipeline.SilenceGapMs)
	spans := buildTimeline(silences, result.durationMs)
	segments := buildSegments(file.ID, spans, result.samples)

	var staleObjects []string
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindAudioFileForUpdate(ctx, file.ID); err != nil {
			return wrapNotFound(err, fmt.Sprintf("audio file %s", file.ID))
		}

		old, err := s.repo.ListSegmentsByFile(ctx, file.ID)
		if err != nil {
			return err
		}
		oldIds := make([]uuid.UUID, 0, len(old))
		for _, seg := range old {
			oldIds = append(oldIds, seg.ID)
			if seg.FilePath != nil {
				staleObjects = append(staleObjects, *seg.FilePath)
			}
		}

		// Replace the whole segment set and drop mappings orphaned by it.
		if err := s.repo.DeleteMappingsBySegmentIds(ctx, oldIds); err != nil {
			return err
		}
		if err := s.repo.DeleteSegmentsByFile(ctx, file.ID); err != nil {
			return err
		}
		if err := s.repo.CreateSegments(ctx, segments); err != nil {
			return err
		}

		return s.repo.UpdateAudioFile(ctx, file.ID, map[string]interface{}{
			"duration_ms":    result.durationMs,
			"waveform_peaks": result.peaks,
			"status":         constant.AudioStatusSegmented,
			"error_message":  nil,
		})
	})
	if err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	// Cut files of the replaced segment set are unreferenced now.
	for _, objectPath := range staleObjects {
		if err := s.store.Remove(ctx, objectPath); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("object", objectPath).Msg("failed to remove stale cut file")
		}
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    message.ActorId,
		Action:     constant.AuditActionProcessAudio,
		EntityType: "audio_file",
		EntityId:   file.ID,
		Details: map[string]interface{}{
			"duration_ms":   result.durationMs,
			"segment_count": len(segments),
		},
	})

	zerolog.Ctx(ctx).Info().
		Str("audio_file_id", file.ID.String()).
		Int64("duration_ms", result.durationMs).
		Int("segment_count", len(segments)).
		Msg("audio file segmented")

	return &dto.ProcessResult{
		AudioFileId:  file.ID,
		DurationMs:   result.durationMs,
		SegmentCount: len(segments),
		Status:       constant.AudioStatusSegmented.String(),
	}, nil
}

// buildSegments turns the tiling into segment rows, each with a local
// envelope sliced from the decoded sample buffer.
func buildSegments(audioFileId uuid.UUID, spans []span, samples []int16) []*entities.AudioSegment {
	segments := make([]*entities.AudioSegment, 0, len(spans))
	for i, sp := range spans {
		segments = append(segments, &entities.AudioSegment{
			AudioFileId:   audioFileId,
			SegmentIndex:  i,
			StartMs:       sp.startMs,
			EndMs:         sp.endMs,
			DurationMs:    sp.endMs - sp.startMs,
			WaveformPeaks: computePeaksRange(samples, sampleIndexAt(sp.startMs), sampleIndexAt(sp.endMs), segmentPeakBuckets),
			IsSilence:     sp.silence,
			Version:       1,
		})
	}
	return segments
}

func (s *pipelineService) Cut(ctx context.Context, message dto.CutMessage) (*dto.CutResult, error) {
	zerolog.Ctx(ctx).Info().Str("audio_file_id", message.AudioFileId.String()).Msg("cutting segments")

	file, err := s.claimForProcessing(ctx, message.AudioFileId, true)
	if err != nil {
		return nil, err
	}

	segments, err := s.repo.ListSegmentsByFile(ctx, file.ID)
	if err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	if err := s.acquireSlot(ctx); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}
	defer s.releaseSlot()

	tempDir := filepath.Join("temp", file.ID.String())
	defer os.RemoveAll(tempDir)
	outputDir := filepath.Join(tempDir, "output")
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	localPath := filepath.Join(tempDir, filepath.Base(file.FilePath))
	if err := s.store.Fetch(ctx, file.FilePath, localPath); err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}

	result := &dto.CutResult{AudioFileId: file.ID, Errors: []dto.SegmentError{}}
	for _, seg := range segments {
		if seg.IsSilence {
			continue
		}
		if err := s.cutOne(ctx, localPath, outputDir, seg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("audio_file_id", file.ID.String()).
				Int("segment_index", seg.SegmentIndex).
				Msg("failed to cut segment")
			result.Errors = append(result.Errors, dto.SegmentError{
				SegmentIndex: seg.SegmentIndex,
				Reason:       truncateErrorMessage(err.Error()),
			})
			continue
		}
		result.CutCount++
	}

	// Partial failures still mark the file usable; the errors travel in
	// the result, not in the state machine.
	err = s.repo.UpdateAudioFile(ctx, file.ID, map[string]interface{}{
		"status": constant.AudioStatusReady,
	})
	if err != nil {
		return nil, s.markError(ctx, file.ID, err)
	}
	result.Status = constant.AudioStatusReady.String()

	s.sink.Record(ctx, audit.Entry{
		ActorId:    message.ActorId,
		Action:     constant.AuditActionCutSegments,
		EntityType: "audio_file",
		EntityId:   file.ID,
		Details: map[string]interface{}{
			"cut_count":   result.CutCount,
			"error_count": len(result.Errors),
		},
	})

	zerolog.Ctx(ctx).Info().
		Str("audio_file_id", file.ID.String()).
		Int("cut_count", result.CutCount).
		Int("error_count", len(result.Errors)).
		Msg("cut batch finished")

	return result, nil
}

func (s *pipelineService) cutOne(ctx context.Context, sourcePath, outputDir string, seg *entities.AudioSegment) error {
	if seg.StartMs >= seg.EndMs {
		return fmt.Errorf("invalid boundaries: start_ms %d >= end_ms %d", seg.StartMs, seg.EndMs)
	}

	objectPath := segmentObjectPath(seg.AudioFileId, seg.SegmentIndex, seg.Version)
	destPath := filepath.Join(outputDir, filepath.Base(objectPath))

	if err := cutSegmentFn(ctx, s.cfg.Pipeline, sourcePath, destPath, seg.StartMs, seg.EndMs); err != nil {
		return err
	}
	if err := s.store.Put(ctx, objectPath, destPath); err != nil {
		return fmt.Errorf("upload segment file: %w", err)
	}

	// Only the artifact path is written, guarded by the version this cut
	// was made from. A boundary edit landing mid-cut bumps the version;
	// the stale artifact is removed and the segment reported for a re-cut.
	updated, err := s.repo.UpdateSegmentFilePath(ctx, seg.ID, seg.Version, objectPath)
	if err != nil {
		return err
	}
	if !updated {
		if removeErr := s.store.Remove(ctx, objectPath); removeErr != nil {
			zerolog.Ctx(ctx).Error().Err(removeErr).Str("object", objectPath).Msg("failed to remove stale cut file")
		}
		return fmt.Errorf("segment boundaries changed during cut, segment needs a re-cut")
	}

	seg.FilePath = &objectPath
	return nil
}
