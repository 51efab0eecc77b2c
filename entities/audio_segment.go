package entities

import (
	"time"

	"github.com/google/uuid"
)

// AudioSegment is one chronological interval of an AudioFile. Segments of a
// file, ordered by SegmentIndex, tile [0, duration_ms] with no gaps and no
// overlaps. FilePath stays nil until the cutter produces a playable file.
type AudioSegment struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AudioFileId   uuid.UUID `json:"audio_file_id" gorm:"type:uuid;not null;index:idx_audio_segments_file"`
	SegmentIndex  int       `json:"segment_index" gorm:"not null"`
	FilePath      *string   `json:"file_path" gorm:"type:varchar(500)"`
	StartMs       int64     `json:"start_ms" gorm:"type:bigint;not null"`
	EndMs         int64     `json:"end_ms" gorm:"type:bigint;not null"`
	DurationMs    int64     `json:"duration_ms" gorm:"type:bigint;not null"`
	WaveformPeaks Peaks     `json:"waveform_peaks" gorm:"type:jsonb"`
	IsSilence     bool      `json:"is_silence" gorm:"not null;default:false"`
	Label         *string   `json:"label" gorm:"type:varchar(255)"`
	Version       int       `json:"version" gorm:"not null;default:1"`
	CreatedAt     time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (AudioSegment) TableName() string {
	return "audio_segments"
}
