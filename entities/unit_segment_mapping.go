package entities

import (
	"time"

	"github.com/google/uuid"
)

// UnitSegmentMapping links a TextUnit to an AudioSegment. At most one
// mapping per text unit may carry IsPublished; PublishMapping enforces this
// at write time.
type UnitSegmentMapping struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TextUnitId     uuid.UUID `json:"text_unit_id" gorm:"type:uuid;not null;index:idx_mappings_text_unit"`
	AudioSegmentId uuid.UUID `json:"audio_segment_id" gorm:"type:uuid;not null;index:idx_mappings_segment"`
	IsPublished    bool      `json:"is_published" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (UnitSegmentMapping) TableName() string {
	return "unit_segment_mappings"
}
