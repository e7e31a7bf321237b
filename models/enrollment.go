package models

import "time"

// EnrollmentStatus represents the lifecycle of a trainee application.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentAccepted EnrollmentStatus = "accepted"
	EnrollmentRejected EnrollmentStatus = "rejected"
)

// ProgramTrainee is the application of a trainee to a program. The
// composite primary key is the uniqueness invariant: at most one row per
// (trainee, program) pair, enforced by the store even under concurrent
// duplicate applications.
type ProgramTrainee struct {
	TraineeID string `gorm:"type:uuid;primaryKey" json:"trainee_id"`
	ProgramID string `gorm:"type:uuid;primaryKey" json:"program_id"`

	Status    EnrollmentStatus `gorm:"size:32;not null;default:'pending'" json:"status"`
	CVURL     string           `gorm:"size:500" json:"cv_url,omitempty"`
	AppliedAt time.Time        `gorm:"autoCreateTime" json:"applied_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	// Relationships
	Trainee Account         `gorm:"foreignKey:TraineeID;constraint:OnDelete:CASCADE" json:"trainee,omitempty"`
	Program TrainingProgram `gorm:"foreignKey:ProgramID;constraint:OnDelete:CASCADE" json:"program,omitempty"`
}
