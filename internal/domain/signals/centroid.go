package signals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserCentroid summarizes a user's saved content in embedding space. Version
// increments on every write and guards compare-and-swap updates.
type UserCentroid struct {
	UserID uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	Vector datatypes.JSON `gorm:"type:jsonb;column:vector" json:"vector"`

	SavedCount   int   `gorm:"column:saved_count;not null;default:0" json:"saved_count"`
	SkippedCount int   `gorm:"column:skipped_count;not null;default:0" json:"skipped_count"`
	Version      int64 `gorm:"column:version;not null;default:0" json:"version"`

	LastRecomputedAt *time.Time `gorm:"column:last_recomputed_at;index" json:"last_recomputed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (UserCentroid) TableName() string { return "user_centroid" }

func (c *UserCentroid) Vec() ([]float32, error) {
	if c == nil {
		return nil, nil
	}
	return DecodeVector(c.Vector)
}

func (c *UserCentroid) SetVec(v []float32) error {
	raw, err := EncodeVector(v)
	if err != nil {
		return err
	}
	c.Vector = raw
	return nil
}
