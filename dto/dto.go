package dto

import (
	"github.com/google/uuid"
	"narration-pipeline/entities"
)

// ProcessMessage triggers the analyze+segment pipeline for one file.
type ProcessMessage struct {
	AudioFileId uuid.UUID `json:"audioFileId"`
	ActorId     uuid.UUID `json:"actorId"`
}

// CutMessage triggers cutting of every non-silence segment of one file.
type CutMessage struct {
	AudioFileId uuid.UUID `json:"audioFileId"`
	ActorId     uuid.UUID `json:"actorId"`
}

type AudioFileOut struct {
	ID               uuid.UUID      `json:"id"`
	BookId           uuid.UUID      `json:"book_id"`
	OriginalFilename string         `json:"original_filename"`
	FileSizeBytes    int64          `json:"file_size_bytes"`
	DurationMs       *int64         `json:"duration_ms,omitempty"`
	WaveformPeaks    entities.Peaks `json:"waveform_peaks,omitempty"`
	Status           string         `json:"status"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	PageStart        *int           `json:"page_start,omitempty"`
	PageEnd          *int           `json:"page_end,omitempty"`
	SegmentCount     int            `json:"segment_count"`
	CreatedAt        string         `json:"created_at"`
}

type AudioSegmentOut struct {
	ID            uuid.UUID      `json:"id"`
	SegmentIndex  int            `json:"segment_index"`
	FileURL       *string        `json:"file_url,omitempty"`
	StartMs       int64          `json:"start_ms"`
	EndMs         int64          `json:"end_ms"`
	DurationMs    int64          `json:"duration_ms"`
	WaveformPeaks entities.Peaks `json:"waveform_peaks,omitempty"`
	IsSilence     bool           `json:"is_silence"`
	Label         *string        `json:"label,omitempty"`
	Version       int            `json:"version"`
}

// SegmentUpdate carries a boundary or label edit. Nil fields stay untouched.
type SegmentUpdate struct {
	StartMs *int64  `json:"start_ms"`
	EndMs   *int64  `json:"end_ms"`
	Label   *string `json:"label"`
}

type MappingCreate struct {
	TextUnitId     uuid.UUID `json:"text_unit_id" binding:"required"`
	AudioSegmentId uuid.UUID `json:"audio_segment_id" binding:"required"`
}

type MappingOut struct {
	ID             uuid.UUID `json:"id"`
	TextUnitId     uuid.UUID `json:"text_unit_id"`
	AudioSegmentId uuid.UUID `json:"audio_segment_id"`
	IsPublished    bool      `json:"is_published"`
}

// ProcessResult is the synchronous outcome of one process run.
type ProcessResult struct {
	AudioFileId  uuid.UUID `json:"audio_file_id"`
	DurationMs   int64     `json:"duration_ms"`
	SegmentCount int       `json:"segment_count"`
	Status       string    `json:"status"`
}

// SegmentError describes one segment that failed during a cut batch.
type SegmentError struct {
	SegmentIndex int    `json:"segment_index"`
	Reason       string `json:"reason"`
}

// CutResult reports a cut batch. Partial failures are data, not errors:
// CutCount counts successes and Errors lists the rest.
type CutResult struct {
	AudioFileId uuid.UUID      `json:"audio_file_id"`
	CutCount    int            `json:"cut_count"`
	Errors      []SegmentError `json:"errors"`
	Status      string         `json:"status"`
}
