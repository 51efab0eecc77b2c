package entities

import (
	"time"

	"github.com/google/uuid"
	"narration-pipeline/constant"
)

// AudioFile is one uploaded narrator recording. DurationMs and WaveformPeaks
// stay unset until a successful analysis pass populates both together.
type AudioFile struct {
	ID                 uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	BookId             uuid.UUID            `json:"book_id" gorm:"type:uuid;not null;index:idx_audio_files_book_id"`
	OriginalFilename   string               `json:"original_filename" gorm:"type:varchar(255);not null"`
	FilePath           string               `json:"file_path" gorm:"type:varchar(500);not null"`
	FileSizeBytes      int64                `json:"file_size_bytes" gorm:"type:bigint;not null"`
	DurationMs         *int64               `json:"duration_ms" gorm:"type:bigint"`
	WaveformPeaks      Peaks                `json:"waveform_peaks" gorm:"type:jsonb"`
	Status             constant.AudioStatus `json:"status" gorm:"type:varchar(20);not null;default:'UPLOADED';index:idx_audio_files_status"`
	ErrorMessage       *string              `json:"error_message" gorm:"type:varchar(500)"`
	PageStart          *int                 `json:"page_start" gorm:"type:integer"`
	PageEnd            *int                 `json:"page_end" gorm:"type:integer"`
	ProcessingMetadata Metadata             `json:"processing_metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time            `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time            `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (AudioFile) TableName() string {
	return "audio_files"
}
