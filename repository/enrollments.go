package repository

import (
	"context"
	"log/slog"

	"github.com/trainhub/tms/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateEnrollment inserts a trainee application. The composite primary
// key (trainee_id, program_id) turns a concurrent duplicate apply into a
// Conflict here even when the service-level pre-check raced.
func (r *GORMRepository) CreateEnrollment(ctx context.Context, enrollment *models.ProgramTrainee) error {
	if err := r.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		if isUniqueViolation(err) {
			return errDuplicate(err, "trainee already applied to this program")
		}
		slog.Error("Failed to create enrollment", "error", err, "trainee_id", enrollment.TraineeID, "program_id", enrollment.ProgramID)
		return err
	}
	slog.Info("Enrollment created", "trainee_id", enrollment.TraineeID, "program_id", enrollment.ProgramID)
	return nil
}

func (r *GORMRepository) GetEnrollment(ctx context.Context, traineeID, programID string) (*models.ProgramTrainee, error) {
	var enrollment models.ProgramTrainee
	err := r.db.WithContext(ctx).
		Where("trainee_id = ? AND program_id = ?", traineeID, programID).
		Preload("Program").
		First(&enrollment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get enrollment", "error", err, "trainee_id", traineeID, "program_id", programID)
		return nil, err
	}
	return &enrollment, nil
}

// TransitionEnrollment moves a pending application to accepted or
// rejected under a row lock, mirroring the program transition guard. The
// previous status is returned; empty means no such enrollment.
func (r *GORMRepository) TransitionEnrollment(ctx context.Context, traineeID, programID string, to models.EnrollmentStatus) (models.EnrollmentStatus, error) {
	var previous models.EnrollmentStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment models.ProgramTrainee
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("trainee_id = ? AND program_id = ?", traineeID, programID).
			First(&enrollment).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		previous = enrollment.Status
		if previous != models.EnrollmentPending {
			return nil
		}
		return tx.Model(&models.ProgramTrainee{}).
			Where("trainee_id = ? AND program_id = ?", traineeID, programID).
			Update("status", to).Error
	})
	if err != nil {
		slog.Error("Failed to transition enrollment", "error", err, "trainee_id", traineeID, "program_id", programID, "to", to)
		return "", err
	}
	if previous == models.EnrollmentPending {
		slog.Info("Enrollment transitioned", "trainee_id", traineeID, "program_id", programID, "to", to)
	}
	return previous, nil
}

// ListEnrollmentsForProgram pages through a program's applicants. The
// paging values must already be normalized by the caller.
func (r *GORMRepository) ListEnrollmentsForProgram(ctx context.Context, programID string, page, pageSize int) ([]models.ProgramTrainee, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ProgramTrainee{}).Where("program_id = ?", programID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		slog.Error("Failed to count program enrollments", "error", err, "program_id", programID)
		return nil, 0, err
	}

	var enrollments []models.ProgramTrainee
	err := query.
		Preload("Trainee").
		Order("applied_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&enrollments).Error
	if err != nil {
		slog.Error("Failed to list program enrollments", "error", err, "program_id", programID)
		return nil, 0, err
	}
	return enrollments, total, nil
}

// ListEnrollmentCVs returns the CV file URLs of a program's applicants,
// used to clean up uploads when the program is deleted.
func (r *GORMRepository) ListEnrollmentCVs(ctx context.Context, programID string) ([]string, error) {
	var urls []string
	if err := r.db.WithContext(ctx).Model(&models.ProgramTrainee{}).
		Where("program_id = ? AND cv_url <> ''", programID).
		Pluck("cv_url", &urls).Error; err != nil {
		slog.Error("Failed to list enrollment CVs", "error", err, "program_id", programID)
		return nil, err
	}
	return urls, nil
}

func (r *GORMRepository) ListEnrollmentsForTrainee(ctx context.Context, traineeID string) ([]models.ProgramTrainee, error) {
	var enrollments []models.ProgramTrainee
	err := r.db.WithContext(ctx).
		Where("trainee_id = ?", traineeID).
		Preload("Program").
		Preload("Program.Category").
		Order("applied_at DESC").
		Find(&enrollments).Error
	if err != nil {
		slog.Error("Failed to list trainee enrollments", "error", err, "trainee_id", traineeID)
		return nil, err
	}
	return enrollments, nil
}
