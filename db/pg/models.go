package pg

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentModel stores one document of any collection as a JSONB field set.
// Seq is assigned by the database and gives the store-internal order.
type DocumentModel struct {
	Collection string            `gorm:"size:64;primaryKey"`
	ID         string            `gorm:"size:128;primaryKey"`
	Seq        int64             `gorm:"<-:false"`
	Fields     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for DocumentModel.
func (DocumentModel) TableName() string {
	return "documents"
}
