package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/trainhub/tms/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgramFilter selects a slice of programs for one actor's view. Empty
// fields are not applied. Page and PageSize must already be normalized
// to positive values; the service layer clamps them before building the
// filter.
type ProgramFilter struct {
	Status       models.ApprovalStatus
	CompanyID    string
	SupervisorID string
	Page         int
	PageSize     int
}

func (r *GORMRepository) CreateProgram(ctx context.Context, program *models.TrainingProgram) error {
	if err := r.db.WithContext(ctx).Create(program).Error; err != nil {
		slog.Error("Failed to create program", "error", err, "company_id", program.CompanyID)
		return err
	}
	slog.Info("Program created", "program_id", program.ID, "company_id", program.CompanyID, "status", program.ApprovalStatus)
	return nil
}

// GetProgramByID loads a program with its category, company and
// supervisor projections attached.
func (r *GORMRepository) GetProgramByID(ctx context.Context, id string) (*models.TrainingProgram, error) {
	var program models.TrainingProgram
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Category").
		Preload("Company").
		Preload("Supervisor").
		First(&program).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get program", "error", err, "program_id", id)
		return nil, err
	}
	return &program, nil
}

// UpdateProgramIfPending persists an edit only while the program is
// still pending moderation. The row is locked and the status re-checked
// inside the transaction, so an edit that raced a concurrent
// approve/reject cannot drag a decided program back to pending. Returns
// false when the program has left pending or no longer exists.
func (r *GORMRepository) UpdateProgramIfPending(ctx context.Context, program *models.TrainingProgram) (bool, error) {
	updated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.TrainingProgram
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", program.ID).First(&current).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if current.ApprovalStatus != models.ApprovalPending {
			return nil
		}
		if err := tx.Model(&models.TrainingProgram{}).Where("id = ?", program.ID).
			Updates(map[string]interface{}{
				"title":         program.Title,
				"description":   program.Description,
				"start_date":    program.StartDate,
				"end_date":      program.EndDate,
				"seats":         program.Seats,
				"category_id":   program.CategoryID,
				"supervisor_id": program.SupervisorID,
				"image_url":     program.ImageURL,
			}).Error; err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		slog.Error("Failed to update program", "error", err, "program_id", program.ID)
		return false, err
	}
	if updated {
		slog.Info("Program updated", "program_id", program.ID)
	}
	return updated, nil
}

func (r *GORMRepository) DeleteProgram(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("program_id = ?", id).Delete(&models.ProgramTrainee{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.TrainingProgram{}, "id = ?", id).Error
	})
	if err != nil {
		slog.Error("Failed to delete program", "error", err, "program_id", id)
		return err
	}
	slog.Info("Program deleted", "program_id", id)
	return nil
}

// ListPrograms returns one page of programs matching the filter plus the
// total row count for that filter.
func (r *GORMRepository) ListPrograms(ctx context.Context, filter ProgramFilter) ([]models.TrainingProgram, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TrainingProgram{})
	if filter.Status != "" {
		query = query.Where("approval_status = ?", filter.Status)
	}
	if filter.CompanyID != "" {
		query = query.Where("company_id = ?", filter.CompanyID)
	}
	if filter.SupervisorID != "" {
		query = query.Where("supervisor_id = ?", filter.SupervisorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		slog.Error("Failed to count programs", "error", err)
		return nil, 0, err
	}

	var programs []models.TrainingProgram
	err := query.
		Preload("Category").
		Preload("Company").
		Preload("Supervisor").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&programs).Error
	if err != nil {
		slog.Error("Failed to list programs", "error", err)
		return nil, 0, err
	}
	return programs, total, nil
}

// ListAllProgramIDs returns id and image URL pairs for every program,
// used by bulk deletion to clean up files row by row.
func (r *GORMRepository) ListAllProgramIDs(ctx context.Context) ([]models.TrainingProgram, error) {
	var programs []models.TrainingProgram
	if err := r.db.WithContext(ctx).Select("id", "image_url").Find(&programs).Error; err != nil {
		slog.Error("Failed to list program ids", "error", err)
		return nil, err
	}
	return programs, nil
}

// TransitionProgram performs the pending -> approved/rejected step as a
// locked read-modify-write. The previous status is returned so callers
// can distinguish a real transition from an already-decided program; an
// empty status means the program does not exist. Concurrent
// approve/reject calls serialize on the row lock and the loser observes
// the changed state instead of overwriting it.
func (r *GORMRepository) TransitionProgram(ctx context.Context, id string, to models.ApprovalStatus, reason string) (models.ApprovalStatus, error) {
	var previous models.ApprovalStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var program models.TrainingProgram
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&program).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		previous = program.ApprovalStatus
		if previous != models.ApprovalPending {
			return nil
		}
		updates := map[string]interface{}{"approval_status": to}
		if to == models.ApprovalRejected {
			updates["rejection_reason"] = reason
			updates["rejected_at"] = time.Now()
		}
		return tx.Model(&models.TrainingProgram{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		slog.Error("Failed to transition program", "error", err, "program_id", id, "to", to)
		return "", err
	}
	if previous == models.ApprovalPending {
		slog.Info("Program transitioned", "program_id", id, "to", to)
	}
	return previous, nil
}

// CountProgramsByCompany supports the company-deletion and role-change
// integrity guards.
func (r *GORMRepository) CountProgramsByCompany(ctx context.Context, companyID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TrainingProgram{}).
		Where("company_id = ?", companyID).Count(&count).Error; err != nil {
		slog.Error("Failed to count company programs", "error", err, "company_id", companyID)
		return 0, err
	}
	return count, nil
}

func (r *GORMRepository) CountProgramsBySupervisor(ctx context.Context, supervisorID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TrainingProgram{}).
		Where("supervisor_id = ?", supervisorID).Count(&count).Error; err != nil {
		slog.Error("Failed to count supervised programs", "error", err, "supervisor_id", supervisorID)
		return 0, err
	}
	return count, nil
}
