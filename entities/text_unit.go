package entities

import (
	"github.com/google/uuid"
)

// TextUnit is owned by the content service; only the columns needed for
// mapping existence checks are declared here.
type TextUnit struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BookId uuid.UUID `json:"book_id" gorm:"type:uuid;not null"`
}

func (TextUnit) TableName() string {
	return "text_units"
}
