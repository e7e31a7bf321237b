package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Role is the closed set of account roles. It is persisted as a string
// column but only ever constructed through ParseRole.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleCompany    Role = "company"
	RoleSupervisor Role = "supervisor"
	RoleTrainee    Role = "trainee"
)

// ParseRole maps a persisted or user-supplied value onto the closed role
// set. Unknown values are an error, never a passthrough.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleCompany:
		return RoleCompany, nil
	case RoleSupervisor:
		return RoleSupervisor, nil
	case RoleTrainee:
		return RoleTrainee, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

func (r Role) String() string {
	return string(r)
}

type Account struct {
	ID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"size:255" json:"-"` // Hashed password (excluded from JSON)
	FullName string `gorm:"size:255" json:"full_name,omitempty"`
	Role     string `gorm:"size:32;not null" json:"role"`
	CVURL    string `gorm:"size:500" json:"cv_url,omitempty"`

	// Single rotating refresh token per account. Only the SHA-256 hash of
	// the issued value is stored; overwriting it invalidates the old one.
	RefreshTokenHash      string     `gorm:"size:64" json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	OwnedPrograms      []TrainingProgram `gorm:"foreignKey:CompanyID" json:"owned_programs,omitempty"`
	SupervisedPrograms []TrainingProgram `gorm:"foreignKey:SupervisorID" json:"supervised_programs,omitempty"`
	Enrollments        []ProgramTrainee  `gorm:"foreignKey:TraineeID" json:"enrollments,omitempty"`
}
