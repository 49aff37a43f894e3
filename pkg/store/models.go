package store

import "time"

// GORM models used for persistence.
type DocumentModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	FileRef     string    `gorm:"not null"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// AssistantModel uses the document id as primary key; the constraint is what
// guarantees idempotent provisioning under concurrent triggers.
type AssistantModel struct {
	DocumentID  string    `gorm:"primaryKey"`
	AssistantID string    `gorm:"not null"`
	ThreadID    string    `gorm:"not null"`
	UsedAt      time.Time `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`

	// Belongs-to association used for joined reads; the foreign key itself
	// is installed by the migration block, so migration skips this field.
	Document DocumentModel `gorm:"foreignKey:DocumentID;references:ID;-:migration"`
}

type DocumentSummaryModel struct {
	ID         string    `gorm:"primaryKey"`
	DocumentID string    `gorm:"not null;index"`
	Text       string    `gorm:"type:text;not null"`
	Idx        int       `gorm:"column:idx;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
