package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
	"github.com/trainhub/tms/repository"
)

// ProgramStore is the persistence surface of the lifecycle engine.
// Satisfied by *repository.GORMRepository.
type ProgramStore interface {
	CreateProgram(ctx context.Context, program *models.TrainingProgram) error
	GetProgramByID(ctx context.Context, id string) (*models.TrainingProgram, error)
	UpdateProgramIfPending(ctx context.Context, program *models.TrainingProgram) (bool, error)
	DeleteProgram(ctx context.Context, id string) error
	ListPrograms(ctx context.Context, filter repository.ProgramFilter) ([]models.TrainingProgram, int64, error)
	ListAllProgramIDs(ctx context.Context) ([]models.TrainingProgram, error)
	TransitionProgram(ctx context.Context, id string, to models.ApprovalStatus, reason string) (models.ApprovalStatus, error)
	ListEnrollmentCVs(ctx context.Context, programID string) ([]string, error)
	GetCategoryByID(ctx context.Context, id string) (*models.Category, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// ProgramEvent is pushed to connected dashboards when a program changes
// moderation state.
type ProgramEvent struct {
	Type      string `json:"type"` // "program.submitted", "program.approved", "program.rejected"
	ProgramID string `json:"program_id"`
	Title     string `json:"title"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status"`
}

// EventPublisher fans lifecycle events out to subscribers. May be nil.
type EventPublisher interface {
	PublishProgramEvent(event ProgramEvent)
}

// Upload is a file attached to a request.
type Upload struct {
	Content  io.Reader
	Filename string
}

type ProgramService struct {
	store  ProgramStore
	files  FileStore
	events EventPublisher
}

func NewProgramService(store ProgramStore, files FileStore, events EventPublisher) *ProgramService {
	return &ProgramService{store: store, files: files, events: events}
}

type CreateProgramInput struct {
	Title        string
	Description  string
	StartDate    time.Time
	EndDate      time.Time
	Seats        int
	CompanyID    string // only honored for admin actors
	CategoryID   string
	SupervisorID *string
	Image        *Upload
}

// UpdateProgramInput carries partial-update semantics: nil fields leave
// the stored value untouched, present fields overwrite it. The
// supervisor assignment is a tri-state: SupervisorID set reassigns,
// ClearSupervisor detaches, neither leaves it alone.
type UpdateProgramInput struct {
	Title           *string
	Description     *string
	StartDate       *time.Time
	EndDate         *time.Time
	Seats           *int
	CategoryID      *string
	SupervisorID    *string
	ClearSupervisor bool
	Image           *Upload
}

// ProgramPage is one page of a partitioned program listing.
type ProgramPage struct {
	Programs []models.TrainingProgram `json:"programs"`
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

// Create validates references and dates, persists the program and returns
// it with its category, company and supervisor attached. Admin-created
// programs skip moderation and start out approved. The image file is
// written before the row and removed again if the insert fails, so a
// failed create leaves neither an orphaned row nor a dangling file.
func (s *ProgramService) Create(ctx context.Context, actor ActorContext, input CreateProgramInput) (*models.TrainingProgram, error) {
	companyID, err := CanCreateProgram(actor, input.CompanyID)
	if err != nil {
		return nil, err
	}
	if input.Title == "" {
		return nil, apperr.New(apperr.CodeValidation, "title is required", nil)
	}
	if input.Seats <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "seats must be positive", nil)
	}
	if err := validateProgramDates(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	category, err := s.store.GetCategoryByID(ctx, input.CategoryID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to look up category", err)
	}
	if category == nil {
		return nil, apperr.New(apperr.CodeValidation, "category does not exist", nil)
	}

	company, err := s.store.GetAccountByID(ctx, companyID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to look up company", err)
	}
	if company == nil || models.Role(company.Role) != models.RoleCompany {
		return nil, apperr.New(apperr.CodeValidation, "company does not exist", nil)
	}

	if input.SupervisorID != nil {
		if err := s.checkSupervisor(ctx, *input.SupervisorID); err != nil {
			return nil, err
		}
	}

	status := models.ApprovalPending
	if actor.Role == models.RoleAdmin {
		status = models.ApprovalApproved
	}

	var imageURL string
	if input.Image != nil {
		imageURL, err = s.files.Save(ctx, input.Image.Content, "programs", input.Image.Filename)
		if err != nil {
			return nil, err
		}
	}

	program := &models.TrainingProgram{
		Title:          input.Title,
		Description:    input.Description,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Seats:          input.Seats,
		ImageURL:       imageURL,
		CompanyID:      companyID,
		SupervisorID:   input.SupervisorID,
		CategoryID:     input.CategoryID,
		ApprovalStatus: status,
	}
	if err := s.store.CreateProgram(ctx, program); err != nil {
		if imageURL != "" {
			if cleanupErr := s.files.DeleteByURL(ctx, imageURL); cleanupErr != nil {
				slog.Error("Failed to clean up image after insert failure", "error", cleanupErr, "url", imageURL)
			}
		}
		return nil, apperr.New(apperr.CodeInternal, "failed to create program", err)
	}

	created, err := s.store.GetProgramByID(ctx, program.ID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to reload program", err)
	}

	eventType := "program.submitted"
	if status == models.ApprovalApproved {
		eventType = "program.approved"
	}
	s.publish(ProgramEvent{
		Type:      eventType,
		ProgramID: created.ID,
		Title:     created.Title,
		CompanyID: created.CompanyID,
		Status:    string(created.ApprovalStatus),
	})
	return created, nil
}

// Update applies a partial edit to a pending program. Each present field
// is applied individually; changed references and dates are re-validated.
func (s *ProgramService) Update(ctx context.Context, actor ActorContext, programID string, input UpdateProgramInput) (*models.TrainingProgram, error) {
	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	if err := CanEditProgram(actor, program); err != nil {
		return nil, err
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, apperr.New(apperr.CodeValidation, "title cannot be empty", nil)
		}
		program.Title = *input.Title
	}
	if input.Description != nil {
		program.Description = *input.Description
	}
	if input.Seats != nil {
		if *input.Seats <= 0 {
			return nil, apperr.New(apperr.CodeValidation, "seats must be positive", nil)
		}
		program.Seats = *input.Seats
	}
	if input.StartDate != nil || input.EndDate != nil {
		start := program.StartDate
		end := program.EndDate
		if input.StartDate != nil {
			start = *input.StartDate
		}
		if input.EndDate != nil {
			end = *input.EndDate
		}
		if err := validateProgramDates(start, end); err != nil {
			return nil, err
		}
		program.StartDate = start
		program.EndDate = end
	}
	if input.CategoryID != nil {
		category, err := s.store.GetCategoryByID(ctx, *input.CategoryID)
		if err != nil {
			return nil, apperr.New(apperr.CodeInternal, "failed to look up category", err)
		}
		if category == nil {
			return nil, apperr.New(apperr.CodeValidation, "category does not exist", nil)
		}
		program.CategoryID = *input.CategoryID
	}
	if input.ClearSupervisor {
		program.SupervisorID = nil
	} else if input.SupervisorID != nil {
		if err := s.checkSupervisor(ctx, *input.SupervisorID); err != nil {
			return nil, err
		}
		program.SupervisorID = input.SupervisorID
	}

	oldImage := program.ImageURL
	if input.Image != nil {
		newURL, err := s.files.Save(ctx, input.Image.Content, "programs", input.Image.Filename)
		if err != nil {
			return nil, err
		}
		program.ImageURL = newURL
	}

	// The write re-checks the pending status under a row lock, so an edit
	// that raced a concurrent approve/reject is refused instead of
	// dragging the decided program back to pending.
	updated, err := s.store.UpdateProgramIfPending(ctx, program)
	if err != nil {
		s.cleanupNewImage(ctx, input.Image, program.ImageURL)
		return nil, apperr.New(apperr.CodeInternal, "failed to update program", err)
	}
	if !updated {
		s.cleanupNewImage(ctx, input.Image, program.ImageURL)
		return nil, apperr.New(apperr.CodeForbidden, "only pending programs can be edited", nil)
	}
	if input.Image != nil && oldImage != "" {
		if err := s.files.DeleteByURL(ctx, oldImage); err != nil {
			slog.Error("Failed to delete replaced image", "error", err, "url", oldImage)
		}
	}

	return s.reload(ctx, programID)
}

// Approve moves a pending program to approved. An already-decided program
// is reported as a conflict instead of being re-mutated.
func (s *ProgramService) Approve(ctx context.Context, actor ActorContext, programID string) (*models.TrainingProgram, error) {
	if err := CanModerateProgram(actor); err != nil {
		return nil, err
	}
	previous, err := s.store.TransitionProgram(ctx, programID, models.ApprovalApproved, "")
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to approve program", err)
	}
	if err := checkTransitionOutcome(previous); err != nil {
		return nil, err
	}
	program, err := s.reload(ctx, programID)
	if err != nil {
		return nil, err
	}
	s.publish(ProgramEvent{
		Type:      "program.approved",
		ProgramID: program.ID,
		Title:     program.Title,
		CompanyID: program.CompanyID,
		Status:    string(program.ApprovalStatus),
	})
	return program, nil
}

// Reject moves a pending program to rejected, stamping the reason and the
// rejection time. Same already-decided guard as Approve.
func (s *ProgramService) Reject(ctx context.Context, actor ActorContext, programID, reason string) (*models.TrainingProgram, error) {
	if err := CanModerateProgram(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.New(apperr.CodeValidation, "rejection reason is required", nil)
	}
	previous, err := s.store.TransitionProgram(ctx, programID, models.ApprovalRejected, reason)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to reject program", err)
	}
	if err := checkTransitionOutcome(previous); err != nil {
		return nil, err
	}
	program, err := s.reload(ctx, programID)
	if err != nil {
		return nil, err
	}
	s.publish(ProgramEvent{
		Type:      "program.rejected",
		ProgramID: program.ID,
		Title:     program.Title,
		CompanyID: program.CompanyID,
		Status:    string(program.ApprovalStatus),
	})
	return program, nil
}

// Delete removes a program and its image file.
func (s *ProgramService) Delete(ctx context.Context, actor ActorContext, programID string) error {
	if err := CanModerateProgram(actor); err != nil {
		return err
	}
	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	s.removeProgramUploads(ctx, program.ID, program.ImageURL)
	if err := s.store.DeleteProgram(ctx, programID); err != nil {
		return apperr.New(apperr.CodeInternal, "failed to delete program", err)
	}
	return nil
}

// DeleteAll removes every program row by row, file first, checking for
// cancellation between rows so an aborted bulk delete leaves the store
// consistent with whatever files remain.
func (s *ProgramService) DeleteAll(ctx context.Context, actor ActorContext) (int, error) {
	if err := CanModerateProgram(actor); err != nil {
		return 0, err
	}
	programs, err := s.store.ListAllProgramIDs(ctx)
	if err != nil {
		return 0, apperr.New(apperr.CodeInternal, "failed to list programs", err)
	}
	deleted := 0
	for _, program := range programs {
		if err := ctx.Err(); err != nil {
			slog.Warn("Bulk delete cancelled", "deleted", deleted, "remaining", len(programs)-deleted)
			return deleted, apperr.New(apperr.CodeInternal, "bulk delete cancelled", err)
		}
		s.removeProgramUploads(ctx, program.ID, program.ImageURL)
		if err := s.store.DeleteProgram(ctx, program.ID); err != nil {
			return deleted, apperr.New(apperr.CodeInternal, "failed to delete program", err)
		}
		deleted++
	}
	slog.Info("All programs deleted", "count", deleted)
	return deleted, nil
}

// Get returns a single program subject to the actor's visibility:
// approved programs are public, undecided or rejected ones only exist for
// the admin, the owning company and the assigned supervisor.
func (s *ProgramService) Get(ctx context.Context, actor ActorContext, programID string) (*models.TrainingProgram, error) {
	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	if program.ApprovalStatus != models.ApprovalApproved && !canSeeUnapproved(actor, program) {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	return program, nil
}

// List partitions programs by approval state and actor scope. Every
// branch pins the filter to the actor so no role can page through another
// tenant's pending or rejected programs.
func (s *ProgramService) List(ctx context.Context, actor ActorContext, state models.ApprovalStatus, ownScope bool, page, pageSize int) (*ProgramPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	filter := repository.ProgramFilter{Page: page, PageSize: pageSize}

	switch actor.Role {
	case models.RoleAdmin:
		filter.Status = state
	case models.RoleCompany:
		if ownScope {
			filter.CompanyID = actor.AccountID
			filter.Status = state
		} else {
			filter.Status = models.ApprovalApproved
		}
	case models.RoleSupervisor:
		if ownScope {
			filter.SupervisorID = actor.AccountID
			filter.Status = state
		} else {
			filter.Status = models.ApprovalApproved
		}
	default:
		filter.Status = models.ApprovalApproved
	}

	programs, total, err := s.store.ListPrograms(ctx, filter)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to list programs", err)
	}
	return &ProgramPage{Programs: programs, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *ProgramService) checkSupervisor(ctx context.Context, supervisorID string) error {
	supervisor, err := s.store.GetAccountByID(ctx, supervisorID)
	if err != nil {
		return apperr.New(apperr.CodeInternal, "failed to look up supervisor", err)
	}
	if supervisor == nil || models.Role(supervisor.Role) != models.RoleSupervisor {
		return apperr.New(apperr.CodeValidation, "supervisor does not exist or does not have the supervisor role", nil)
	}
	return nil
}

// cleanupNewImage removes a freshly written replacement image when the
// row update it belonged to did not go through.
func (s *ProgramService) cleanupNewImage(ctx context.Context, image *Upload, url string) {
	if image == nil || url == "" {
		return
	}
	if err := s.files.DeleteByURL(ctx, url); err != nil {
		slog.Error("Failed to clean up image after update failure", "error", err, "url", url)
	}
}

// removeProgramUploads deletes the program image and every applicant CV
// file. Removal failures are logged, not fatal; the rows still go.
func (s *ProgramService) removeProgramUploads(ctx context.Context, programID, imageURL string) {
	if imageURL != "" {
		if err := s.files.DeleteByURL(ctx, imageURL); err != nil {
			slog.Error("Failed to delete program image", "error", err, "program_id", programID)
		}
	}
	cvs, err := s.store.ListEnrollmentCVs(ctx, programID)
	if err != nil {
		slog.Error("Failed to list applicant CVs", "error", err, "program_id", programID)
		return
	}
	for _, url := range cvs {
		if err := s.files.DeleteByURL(ctx, url); err != nil {
			slog.Error("Failed to delete applicant CV", "error", err, "program_id", programID, "url", url)
		}
	}
}

// normalizePage clamps paging parameters to their defaults once, before
// they reach the store.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func (s *ProgramService) reload(ctx context.Context, programID string) (*models.TrainingProgram, error) {
	program, err := s.store.GetProgramByID(ctx, programID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to reload program", err)
	}
	if program == nil {
		return nil, apperr.New(apperr.CodeNotFound, "program not found", nil)
	}
	return program, nil
}

func (s *ProgramService) publish(event ProgramEvent) {
	if s.events != nil {
		s.events.PublishProgramEvent(event)
	}
}

func canSeeUnapproved(actor ActorContext, program *models.TrainingProgram) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCompany:
		return actor.AccountID == program.CompanyID
	case models.RoleSupervisor:
		return program.SupervisorID != nil && actor.AccountID == *program.SupervisorID
	default:
		return false
	}
}

// checkTransitionOutcome maps the previous status returned by the store
// into the caller-facing result: missing row, already decided, or ok.
func checkTransitionOutcome(previous models.ApprovalStatus) error {
	switch previous {
	case "":
		return apperr.New(apperr.CodeNotFound, "program not found", nil)
	case models.ApprovalApproved:
		return apperr.New(apperr.CodeConflict, "program already approved", nil)
	case models.ApprovalRejected:
		return apperr.New(apperr.CodeConflict, "program already rejected", nil)
	default:
		return nil
	}
}

// validateProgramDates enforces the date-range rules: start strictly in
// the future, end after start, duration within the allowed bounds.
func validateProgramDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.New(apperr.CodeValidation, "start_date and end_date are required", nil)
	}
	if !start.After(time.Now()) {
		return apperr.New(apperr.CodeValidation, "start_date must be in the future", nil)
	}
	if !end.After(start) {
		return apperr.New(apperr.CodeValidation, "end_date must be after start_date", nil)
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < models.MinProgramDays || days > models.MaxProgramDays {
		return apperr.New(apperr.CodeValidation, "program duration must be between 7 and 365 days", nil)
	}
	return nil
}
