package db_models

import "github.com/google/uuid"

type PolicyStatus string

const (
	PolicyStatusIssued    PolicyStatus = "issued"
	PolicyStatusSuspended PolicyStatus = "suspended"
	PolicyStatusCancelled PolicyStatus = "cancelled"
)

type AllocationMode string

const (
	AllocationAutomatic AllocationMode = "automatic"
	AllocationBackfill  AllocationMode = "backfill"
)

// PolicyNumber is the externally visible proof of an activated subscription.
// Bucket is the code prefix (country, year, category); Sequence is unique within it.
type PolicyNumber struct {
	BaseModel
	Code           string    `gorm:"size:32;uniqueIndex;not null"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	ClientID       uuid.UUID `gorm:"type:uuid;index"`

	Bucket      string `gorm:"size:24;not null;uniqueIndex:idx_policy_bucket_seq,priority:1"`
	Sequence    int    `gorm:"not null;uniqueIndex:idx_policy_bucket_seq,priority:2"`
	Year        int
	CategoryTag string `gorm:"size:3"`

	Status          PolicyStatus   `gorm:"size:16;index"`
	Mode            AllocationMode `gorm:"size:16"`
	IssuedAt        int64
	StatusChangedAt *int64
	StatusNote      string `gorm:"size:255"`
}
