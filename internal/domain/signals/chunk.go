package signals

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentChunk is a fixed-size window of transcript or article text produced
// by ingestion. The engine only reads it.
type ContentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Text     string   `gorm:"column:text;type:text;not null" json:"text"`
	StartSec *float64 `gorm:"column:start_sec" json:"start_sec,omitempty"`
	EndSec   *float64 `gorm:"column:end_sec" json:"end_sec,omitempty"`

	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ContentChunk) TableName() string { return "content_chunk" }

func (c *ContentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Vector decodes the stored embedding.
func (c *ContentChunk) Vector() ([]float32, error) {
	return DecodeVector(c.Embedding)
}

// SetVector encodes v into the embedding column.
func (c *ContentChunk) SetVector(v []float32) error {
	raw, err := EncodeVector(v)
	if err != nil {
		return err
	}
	c.Embedding = raw
	return nil
}

// WordCount counts whitespace-separated tokens.
func (c *ContentChunk) WordCount() int {
	return len(strings.Fields(c.Text))
}
