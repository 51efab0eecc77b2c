package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/audit"
)

func (s *libraryService) ListSegments(ctx context.Context, audioFileId uuid.UUID) ([]*dto.AudioSegmentOut, error) {
	if _, err := s.repo.FindAudioFileById(ctx, audioFileId); err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("audio file %s", audioFileId))
	}

	segments, err := s.repo.ListSegmentsByFile(ctx, audioFileId)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.AudioSegmentOut, 0, len(segments))
	for _, seg := range segments {
		out = append(out, s.segmentOut(seg))
	}
	return out, nil
}

// UpdateSegment applies a boundary or label edit. Boundary edits recompute
// duration_ms and bump version so that the next cut lands on a fresh path.
func (s *libraryService) UpdateSegment(ctx context.Context, actorId, segmentId uuid.UUID, update dto.SegmentUpdate) (*dto.AudioSegmentOut, error) {
	seg, err := s.repo.FindSegmentById(ctx, segmentId)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("segment %s", segmentId))
	}

	startMs := seg.StartMs
	endMs := seg.EndMs
	if update.StartMs != nil {
		startMs = *update.StartMs
	}
	if update.EndMs != nil {
		endMs = *update.EndMs
	}

	boundaryEdit := startMs != seg.StartMs || endMs != seg.EndMs
	if boundaryEdit {
		if startMs < 0 || endMs <= startMs {
			return nil, fmt.Errorf("%w: start_ms %d / end_ms %d are not a valid interval", ErrValidation, startMs, endMs)
		}
		file, err := s.repo.FindAudioFileById(ctx, seg.AudioFileId)
		if err != nil {
			return nil, err
		}
		if file.DurationMs != nil && endMs > *file.DurationMs {
			return nil, fmt.Errorf("%w: end_ms %d exceeds file duration %d", ErrValidation, endMs, *file.DurationMs)
		}

		seg.StartMs = startMs
		seg.EndMs = endMs
		seg.DurationMs = endMs - startMs
		seg.Version++
	}
	if update.Label != nil {
		seg.Label = update.Label
	}

	if err := s.repo.SaveSegment(ctx, seg); err != nil {
		return nil, err
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionUpdateSegment,
		EntityType: "audio_segment",
		EntityId:   segmentId,
		Details: map[string]interface{}{
			"boundary_edit": boundaryEdit,
			"version":       seg.Version,
		},
	})

	return s.segmentOut(seg), nil
}

// DeleteSegment removes the row, its cut file, and every mapping that
// referenced the segment.
func (s *libraryService) DeleteSegment(ctx context.Context, actorId, segmentId uuid.UUID) error {
	var objectPath *string

	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		seg, err := s.repo.FindSegmentById(ctx, segmentId)
		if err != nil {
			return wrapNotFound(err, fmt.Sprintf("segment %s", segmentId))
		}
		objectPath = seg.FilePath

		if err := s.repo.DeleteMappingsBySegmentIds(ctx, []uuid.UUID{segmentId}); err != nil {
			return err
		}
		return s.repo.DeleteSegment(ctx, segmentId)
	})
	if err != nil {
		return err
	}

	if objectPath != nil {
		if err := s.store.Remove(ctx, *objectPath); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("object", *objectPath).Msg("failed to remove segment file")
		}
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionDeleteSegment,
		EntityType: "audio_segment",
		EntityId:   segmentId,
	})

	return nil
}

func (s *libraryService) segmentOut(seg *entities.AudioSegment) *dto.AudioSegmentOut {
	out := &dto.AudioSegmentOut{
		ID:            seg.ID,
		SegmentIndex:  seg.SegmentIndex,
		StartMs:       seg.StartMs,
		EndMs:         seg.EndMs,
		DurationMs:    seg.DurationMs,
		WaveformPeaks: seg.WaveformPeaks,
		IsSilence:     seg.IsSilence,
		Label:         seg.Label,
		Version:       seg.Version,
	}
	if seg.FilePath != nil {
		url := s.store.URL(*seg.FilePath)
		out.FileURL = &url
	}
	return out
}
