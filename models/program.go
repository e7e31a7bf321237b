package models

import (
	"time"

	"gorm.io/gorm"
)

// ApprovalStatus represents the moderation lifecycle of a training program.
type ApprovalStatus string

// Possible approval statuses.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Program duration bounds in days, inclusive.
const (
	MinProgramDays = 7
	MaxProgramDays = 365
)

type Category struct {
	ID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Programs []TrainingProgram `gorm:"foreignKey:CategoryID" json:"programs,omitempty"`
}

type TrainingProgram struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `gorm:"not null" json:"start_date"`
	EndDate     time.Time `gorm:"not null" json:"end_date"`
	Seats       int       `gorm:"not null" json:"seats"`
	Rating      float64   `gorm:"default:0" json:"rating"`
	ImageURL    string    `gorm:"size:500" json:"image_url,omitempty"`

	CompanyID    string  `gorm:"type:uuid;not null;index" json:"company_id"`
	SupervisorID *string `gorm:"type:uuid;index" json:"supervisor_id,omitempty"`
	CategoryID   string  `gorm:"type:uuid;not null;index" json:"category_id"`

	ApprovalStatus  ApprovalStatus `gorm:"size:32;not null;default:'pending'" json:"approval_status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships. A company cannot be deleted while it still owns
	// programs; deleting a supervisor detaches their programs instead.
	Company    Account          `gorm:"foreignKey:CompanyID;constraint:OnDelete:RESTRICT" json:"company,omitempty"`
	Supervisor *Account         `gorm:"foreignKey:SupervisorID;constraint:OnDelete:SET NULL" json:"supervisor,omitempty"`
	Category   Category         `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT" json:"category,omitempty"`
	Trainees   []ProgramTrainee `gorm:"foreignKey:ProgramID;constraint:OnDelete:CASCADE" json:"trainees,omitempty"`
}

// DurationDays is the program length derived from the date range.
func (p *TrainingProgram) DurationDays() int {
	return int(p.EndDate.Sub(p.StartDate).Hours() / 24)
}
