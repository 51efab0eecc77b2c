package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"narration-pipeline/config"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/audit"
	"narration-pipeline/pkg/fileutil"
	"narration-pipeline/repository"
)

// ProcessNotifier hands a freshly ingested file to the async pipeline.
type ProcessNotifier interface {
	NotifyProcess(ctx context.Context, message dto.ProcessMessage) error
}

// IngestInput describes one upload already spooled to a local file.
type IngestInput struct {
	ActorId   uuid.UUID
	BookId    uuid.UUID
	Filename  string
	LocalPath string
	SizeBytes int64
	PageStart *int
	PageEnd   *int
}

// LibraryService covers the boundary operations around stored recordings
// and their segments; the state machine itself lives in PipelineService.
type LibraryService interface {
	Ingest(ctx context.Context, input IngestInput) (*dto.AudioFileOut, error)
	ListFiles(ctx context.Context) ([]*dto.AudioFileOut, error)
	GetFile(ctx context.Context, id uuid.UUID) (*dto.AudioFileOut, error)
	DeleteFile(ctx context.Context, actorId, id uuid.UUID) error

	ListSegments(ctx context.Context, audioFileId uuid.UUID) ([]*dto.AudioSegmentOut, error)
	UpdateSegment(ctx context.Context, actorId, segmentId uuid.UUID, update dto.SegmentUpdate) (*dto.AudioSegmentOut, error)
	DeleteSegment(ctx context.Context, actorId, segmentId uuid.UUID) error
}

type libraryService struct {
	repo     repository.AudioRepository
	cfg      *config.Config
	store    ObjectStore
	sink     audit.Sink
	notifier ProcessNotifier
}

func NewLibraryService(repo repository.AudioRepository, cfg *config.Config, store ObjectStore, sink audit.Sink, notifier ProcessNotifier) LibraryService {
	return &libraryService{
		repo:     repo,
		cfg:      cfg,
		store:    store,
		sink:     sink,
		notifier: notifier,
	}
}

func (s *libraryService) Ingest(ctx context.Context, input IngestInput) (*dto.AudioFileOut, error) {
	if err := validateUpload(s.cfg.Upload, input.Filename, input.SizeBytes); err != nil {
		return nil, err
	}

	objectPath := fmt.Sprintf("uploads/%s_%s", uuid.New(), fileutil.SanitizeFilename(input.Filename))
	if err := s.store.Put(ctx, objectPath, input.LocalPath); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	file := &entities.AudioFile{
		BookId:           input.BookId,
		OriginalFilename: input.Filename,
		FilePath:         objectPath,
		FileSizeBytes:    input.SizeBytes,
		Status:           constant.AudioStatusUploaded,
		PageStart:        input.PageStart,
		PageEnd:          input.PageEnd,
	}
	if err := s.repo.CreateAudioFile(ctx, file); err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyProcess(ctx, dto.ProcessMessage{AudioFileId: file.ID, ActorId: input.ActorId}); err != nil {
		// The upload is durable either way; processing can be re-triggered.
		zerolog.Ctx(ctx).Error().Err(err).Str("audio_file_id", file.ID.String()).Msg("failed to enqueue processing")
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    input.ActorId,
		Action:     constant.AuditActionUploadAudio,
		EntityType: "audio_file",
		EntityId:   file.ID,
		Details: map[string]interface{}{
			"filename":   input.Filename,
			"size_bytes": input.SizeBytes,
		},
	})

	return fileOut(file, 0), nil
}

func validateUpload(cfg config.Upload, filename string, sizeBytes int64) error {
	if !fileutil.HasAllowedExtension(filename, cfg.AllowedExtensions) {
		return fmt.Errorf("%w: only %v files are accepted", ErrValidation, cfg.AllowedExtensions)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: empty upload", ErrValidation)
	}
	if sizeBytes > cfg.MaxSizeBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, cfg.MaxSizeBytes)
	}
	return nil
}

func (s *libraryService) ListFiles(ctx context.Context) ([]*dto.AudioFileOut, error) {
	files, err := s.repo.ListAudioFiles(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountSegmentsPerFile(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.AudioFileOut, 0, len(files))
	for _, file := range files {
		out = append(out, fileOut(file, int(counts[file.ID])))
	}
	return out, nil
}

func (s *libraryService) GetFile(ctx context.Context, id uuid.UUID) (*dto.AudioFileOut, error) {
	file, err := s.repo.FindAudioFileById(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("audio file %s", id))
	}
	count, err := s.repo.CountSegments(ctx, id)
	if err != nil {
		return nil, err
	}
	return fileOut(file, int(count)), nil
}

// DeleteFile removes the file and everything hanging off it: mapping rows,
// segment rows and the file row inside one transaction, then the stored
// objects. No orphaned mapping rows survive.
func (s *libraryService) DeleteFile(ctx context.Context, actorId, id uuid.UUID) error {
	var objectPaths []string

	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		file, err := s.repo.FindAudioFileForUpdate(ctx, id)
		if err != nil {
			return wrapNotFound(err, fmt.Sprintf("audio file %s", id))
		}

		segments, err := s.repo.ListSegmentsByFile(ctx, id)
		if err != nil {
			return err
		}

		segmentIds := make([]uuid.UUID, 0, len(segments))
		for _, seg := range segments {
			segmentIds = append(segmentIds, seg.ID)
			if seg.FilePath != nil {
				objectPaths = append(objectPaths, *seg.FilePath)
			}
		}
		objectPaths = append(objectPaths, file.FilePath)

		if err := s.repo.DeleteMappingsBySegmentIds(ctx, segmentIds); err != nil {
			return err
		}
		if err := s.repo.DeleteSegmentsByFile(ctx, id); err != nil {
			return err
		}
		return s.repo.DeleteAudioFile(ctx, id)
	})
	if err != nil {
		return err
	}

	for _, objectPath := range objectPaths {
		if err := s.store.Remove(ctx, objectPath); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("object", objectPath).Msg("failed to remove object")
		}
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionDeleteAudio,
		EntityType: "audio_file",
		EntityId:   id,
	})

	return nil
}

func fileOut(file *entities.AudioFile, segmentCount int) *dto.AudioFileOut {
	return &dto.AudioFileOut{
		ID:               file.ID,
		BookId:           file.BookId,
		OriginalFilename: file.OriginalFilename,
		FileSizeBytes:    file.FileSizeBytes,
		DurationMs:       file.DurationMs,
		WaveformPeaks:    file.WaveformPeaks,
		Status:           file.Status.String(),
		ErrorMessage:     file.ErrorMessage,
		PageStart:        file.PageStart,
		PageEnd:          file.PageEnd,
		SegmentCount:     segmentCount,
		CreatedAt:        file.CreatedAt.Format(time.RFC3339),
	}
}
