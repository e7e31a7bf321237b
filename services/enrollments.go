package services

import (
	"context"
	"log/slog"

	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

// EnrollmentStore is the persistence surface of the enrollment engine.
// Satisfied by *repository.GORMRepository.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, enrollment *models.ProgramTrainee) error
	GetEnrollment(ctx context.Context, traineeID, programID string) (*models.ProgramTrainee, error)
	TransitionEnrollment(ctx context.Context, traineeID, programID string, to models.EnrollmentStatus) (models.EnrollmentStatus, error)
	ListEnrollmentsForProgram(ctx context.Context, programID string, page, pageSize int) ([]models.ProgramTrainee, int64, error)
	ListEnrollmentsForTrainee(ctx context.Context, traineeID string) ([]models.ProgramTrainee, error)
	GetProgramByID(ctx context.Context, id string) (*models.TrainingProgram, error)
	UpdateAccountCV(ctx context.Context, accountID, cvURL string) error
}

type EnrollmentService struct {
	store EnrollmentStore
	files FileStore
}

func NewEnrollmentService(store EnrollmentStore, files FileStore) *EnrollmentService {
	return &EnrollmentService{store: store, files: files}
}

// EnrollmentPage is one page of applicants for a program.
type EnrollmentPage struct {
	Enrollments []models.ProgramTrainee `json:"enrollments"`
	Total       int64                   `json:"total"`
	Page        int                     `json:"page"`
	PageSize    int                     `json:"page_size"`
}

// Enroll files a trainee application against an approved program. The
// duplicate pre-check is best effort; the composite primary key at the
// store decides races. The CV file is written before the row and removed
// if the insert fails.
func (s *EnrollmentService) Enroll(ctx context.Context, actor ActorContext, programID string, cv *Upload) (*models.ProgramTrainee, error) {
	if err := CanEnroll(actor); err != nil {
		return nil, err
	}

	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	if program.ApprovalStatus != models.ApprovalApproved {
		return nil, apperr.New(apperr.CodeForbidden, "applications are only accepted for approved programs", nil)
	}

	existing, err := s.store.GetEnrollment(ctx, actor.AccountID, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to check existing application", err)
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeConflict, "trainee already applied to this program", nil)
	}

	var cvURL string
	if cv != nil {
		cvURL, err = s.files.Save(ctx, cv.Content, "cvs", cv.Filename)
		if err != nil {
			return nil, err
		}
	}

	enrollment := &models.ProgramTrainee{
		TraineeID: actor.AccountID,
		ProgramID: programID,
		Status:    models.EnrollmentPending,
		CVURL:     cvURL,
	}
	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		if cvURL != "" {
			if cleanupErr := s.files.DeleteByURL(ctx, cvURL); cleanupErr != nil {
				slog.Error("Failed to clean up CV after insert failure", "error", cleanupErr, "url", cvURL)
			}
		}
		if apperr.Is(err, apperr.CodeConflict) {
			return nil, err
		}
		return nil, apperr.New(apperr.CodeInternal, "failed to create enrollment", err)
	}

	// Keep the trainee profile pointing at their latest CV. Best effort;
	// the application already exists.
	if cvURL != "" {
		if err := s.store.UpdateAccountCV(ctx, actor.AccountID, cvURL); err != nil {
			slog.Error("Failed to update trainee CV", "error", err, "trainee_id", actor.AccountID)
		}
	}
	return enrollment, nil
}

// Review accepts or rejects a pending application. Only the company that
// owns the parent program may decide, and a decided application stays
// decided: repeat reviews surface as a conflict, matching the program
// approve/reject guard.
func (s *EnrollmentService) Review(ctx context.Context, actor ActorContext, programID, traineeID string, accept bool) (*models.ProgramTrainee, error) {
	enrollment, err := s.store.GetEnrollment(ctx, traineeID, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get enrollment", err)
	}
	if enrollment == nil {
		return nil, apperr.New(apperr.CodeNotFound, "enrollment not found", nil)
	}

	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	if err := CanReviewEnrollment(actor, program); err != nil {
		return nil, err
	}

	to := models.EnrollmentRejected
	if accept {
		to = models.EnrollmentAccepted
	}
	previous, err := s.store.TransitionEnrollment(ctx, traineeID, programID, to)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to review enrollment", err)
	}
	switch previous {
	case "":
		return nil, apperr.New(apperr.CodeNotFound, "enrollment not found", nil)
	case models.EnrollmentAccepted:
		return nil, apperr.New(apperr.CodeConflict, "enrollment already accepted", nil)
	case models.EnrollmentRejected:
		return nil, apperr.New(apperr.CodeConflict, "enrollment already rejected", nil)
	}

	return s.store.GetEnrollment(ctx, traineeID, programID)
}

// ListForProgram pages through applicants of a program for its owning
// company (or an admin).
func (s *EnrollmentService) ListForProgram(ctx context.Context, actor ActorContext, programID string, page, pageSize int) (*EnrollmentPage, error) {
	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	if err := CanViewProgramApplicants(actor, program); err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize)
	enrollments, total, err := s.store.ListEnrollmentsForProgram(ctx, programID, page, pageSize)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to list enrollments", err)
	}
	return &EnrollmentPage{Enrollments: enrollments, Total: total, Page: page, PageSize: pageSize}, nil
}

// ListMine returns the actor's own applications.
func (s *EnrollmentService) ListMine(ctx context.Context, actor ActorContext) ([]models.ProgramTrainee, error) {
	if err := CanEnroll(actor); err != nil {
		return nil, err
	}
	enrollments, err := s.store.ListEnrollmentsForTrainee(ctx, actor.AccountID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to list enrollments", err)
	}
	return enrollments, nil
}
