package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
	"github.com/trainhub/tms/repository"
)

// fakeRepo is an in-memory stand-in for *repository.GORMRepository used
// by the service tests.
type fakeRepo struct {
	mu          sync.Mutex
	accounts    map[string]*models.Account
	categories  map[string]*models.Category
	programs    map[string]*models.TrainingProgram
	enrollments map[string]*models.ProgramTrainee

	failCreateProgram    error
	failCreateEnrollment error

	// afterGetProgram fires once after the next program read, emulating a
	// write that commits between a read and its dependent update.
	afterGetProgram func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:    make(map[string]*models.Account),
		categories:  make(map[string]*models.Category),
		programs:    make(map[string]*models.TrainingProgram),
		enrollments: make(map[string]*models.ProgramTrainee),
	}
}

func enrollmentKey(traineeID, programID string) string {
	return traineeID + "|" + programID
}

func (f *fakeRepo) addAccount(role models.Role) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := &models.Account{
		ID:    uuid.New().String(),
		Email: uuid.New().String() + "@example.com",
		Role:  role.String(),
	}
	f.accounts[account.ID] = account
	return account
}

func (f *fakeRepo) addProgram(companyID, categoryID string, status models.ApprovalStatus) *models.TrainingProgram {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	program := &models.TrainingProgram{
		ID:             uuid.New().String(),
		Title:          "Backend Internship",
		StartDate:      now.AddDate(0, 1, 0),
		EndDate:        now.AddDate(0, 3, 0),
		Seats:          5,
		CompanyID:      companyID,
		CategoryID:     categoryID,
		ApprovalStatus: status,
		CreatedAt:      now,
	}
	f.programs[program.ID] = program
	return program
}

func (f *fakeRepo) addCategory(name string) *models.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	category := &models.Category{ID: uuid.New().String(), Name: name}
	f.categories[category.ID] = category
	return category
}

// AccountStore

func (f *fakeRepo) CreateAccount(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return errors.New("duplicate email")
		}
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeRepo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id], nil
}

func (f *fakeRepo) SetRefreshToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	account.RefreshTokenHash = tokenHash
	account.RefreshTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeRepo) RotateRefreshToken(ctx context.Context, accountID, presentedHash, newHash string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return false, nil
	}
	if account.RefreshTokenHash == "" || account.RefreshTokenHash != presentedHash {
		return false, nil
	}
	if account.RefreshTokenExpiresAt == nil || account.RefreshTokenExpiresAt.Before(time.Now()) {
		return false, nil
	}
	account.RefreshTokenHash = newHash
	account.RefreshTokenExpiresAt = &expiresAt
	return true, nil
}

func (f *fakeRepo) ClearRefreshToken(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[accountID]; ok {
		account.RefreshTokenHash = ""
		account.RefreshTokenExpiresAt = nil
	}
	return nil
}

// ProgramStore

func (f *fakeRepo) CreateProgram(ctx context.Context, program *models.TrainingProgram) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateProgram != nil {
		return f.failCreateProgram
	}
	if program.ID == "" {
		program.ID = uuid.New().String()
	}
	program.CreatedAt = time.Now()
	f.programs[program.ID] = program
	return nil
}

// GetProgramByID returns a copy, like a row scan does, so services
// cannot observe later store writes through a shared pointer.
func (f *fakeRepo) GetProgramByID(ctx context.Context, id string) (*models.TrainingProgram, error) {
	f.mu.Lock()
	var found *models.TrainingProgram
	if program, ok := f.programs[id]; ok {
		copied := *program
		found = &copied
	}
	hook := f.afterGetProgram
	f.afterGetProgram = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return found, nil
}

func (f *fakeRepo) UpdateProgramIfPending(ctx context.Context, program *models.TrainingProgram) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.programs[program.ID]
	if !ok || current.ApprovalStatus != models.ApprovalPending {
		return false, nil
	}
	current.Title = program.Title
	current.Description = program.Description
	current.StartDate = program.StartDate
	current.EndDate = program.EndDate
	current.Seats = program.Seats
	current.CategoryID = program.CategoryID
	current.SupervisorID = program.SupervisorID
	current.ImageURL = program.ImageURL
	return true, nil
}

func (f *fakeRepo) DeleteProgram(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.programs, id)
	for key, enrollment := range f.enrollments {
		if enrollment.ProgramID == id {
			delete(f.enrollments, key)
		}
	}
	return nil
}

func (f *fakeRepo) ListPrograms(ctx context.Context, filter repository.ProgramFilter) ([]models.TrainingProgram, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.TrainingProgram
	for _, program := range f.programs {
		if filter.Status != "" && program.ApprovalStatus != filter.Status {
			continue
		}
		if filter.CompanyID != "" && program.CompanyID != filter.CompanyID {
			continue
		}
		if filter.SupervisorID != "" && (program.SupervisorID == nil || *program.SupervisorID != filter.SupervisorID) {
			continue
		}
		result = append(result, *program)
	}
	return result, int64(len(result)), nil
}

func (f *fakeRepo) ListAllProgramIDs(ctx context.Context) ([]models.TrainingProgram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.TrainingProgram
	for _, program := range f.programs {
		result = append(result, *program)
	}
	return result, nil
}

func (f *fakeRepo) TransitionProgram(ctx context.Context, id string, to models.ApprovalStatus, reason string) (models.ApprovalStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	program, ok := f.programs[id]
	if !ok {
		return "", nil
	}
	previous := program.ApprovalStatus
	if previous != models.ApprovalPending {
		return previous, nil
	}
	program.ApprovalStatus = to
	if to == models.ApprovalRejected {
		program.RejectionReason = reason
		now := time.Now()
		program.RejectedAt = &now
	}
	return previous, nil
}

func (f *fakeRepo) ListEnrollmentCVs(ctx context.Context, programID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var urls []string
	for _, enrollment := range f.enrollments {
		if enrollment.ProgramID == programID && enrollment.CVURL != "" {
			urls = append(urls, enrollment.CVURL)
		}
	}
	return urls, nil
}

func (f *fakeRepo) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories[id], nil
}

// EnrollmentStore

func (f *fakeRepo) CreateEnrollment(ctx context.Context, enrollment *models.ProgramTrainee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateEnrollment != nil {
		return f.failCreateEnrollment
	}
	key := enrollmentKey(enrollment.TraineeID, enrollment.ProgramID)
	if _, ok := f.enrollments[key]; ok {
		return apperr.New(apperr.CodeConflict, "trainee already applied to this program", nil)
	}
	enrollment.AppliedAt = time.Now()
	f.enrollments[key] = enrollment
	return nil
}

func (f *fakeRepo) GetEnrollment(ctx context.Context, traineeID, programID string) (*models.ProgramTrainee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrollments[enrollmentKey(traineeID, programID)], nil
}

func (f *fakeRepo) TransitionEnrollment(ctx context.Context, traineeID, programID string, to models.EnrollmentStatus) (models.EnrollmentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enrollment, ok := f.enrollments[enrollmentKey(traineeID, programID)]
	if !ok {
		return "", nil
	}
	previous := enrollment.Status
	if previous != models.EnrollmentPending {
		return previous, nil
	}
	enrollment.Status = to
	return previous, nil
}

func (f *fakeRepo) ListEnrollmentsForProgram(ctx context.Context, programID string, page, pageSize int) ([]models.ProgramTrainee, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.ProgramTrainee
	for _, enrollment := range f.enrollments {
		if enrollment.ProgramID == programID {
			result = append(result, *enrollment)
		}
	}
	return result, int64(len(result)), nil
}

func (f *fakeRepo) ListEnrollmentsForTrainee(ctx context.Context, traineeID string) ([]models.ProgramTrainee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.ProgramTrainee
	for _, enrollment := range f.enrollments {
		if enrollment.TraineeID == traineeID {
			result = append(result, *enrollment)
		}
	}
	return result, nil
}

func (f *fakeRepo) UpdateAccountCV(ctx context.Context, accountID, cvURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[accountID]; ok {
		account.CVURL = cvURL
	}
	return nil
}

// AccountAdminStore

func (f *fakeRepo) UpdateAccountRole(ctx context.Context, id string, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	account.Role = role.String()
	return nil
}

func (f *fakeRepo) DeleteAccount(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch models.Role(account.Role) {
	case models.RoleSupervisor:
		for _, program := range f.programs {
			if program.SupervisorID != nil && *program.SupervisorID == account.ID {
				program.SupervisorID = nil
			}
		}
	case models.RoleTrainee:
		for key, enrollment := range f.enrollments {
			if enrollment.TraineeID == account.ID {
				delete(f.enrollments, key)
			}
		}
	}
	delete(f.accounts, account.ID)
	return nil
}

func (f *fakeRepo) CountProgramsByCompany(ctx context.Context, companyID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, program := range f.programs {
		if program.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CountProgramsBySupervisor(ctx context.Context, supervisorID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, program := range f.programs {
		if program.SupervisorID != nil && *program.SupervisorID == supervisorID {
			count++
		}
	}
	return count, nil
}

// fakeFiles records saves and deletes without touching the filesystem.
type fakeFiles struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
	nextID  int
}

func (f *fakeFiles) Save(ctx context.Context, content io.Reader, folder, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	url := fmt.Sprintf("/uploads/%s/%d-%s", folder, f.nextID, filename)
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeFiles) DeleteByURL(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

// recordPublisher captures program events.
type recordPublisher struct {
	mu     sync.Mutex
	events []ProgramEvent
}

func (p *recordPublisher) PublishProgramEvent(event ProgramEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func testUpload() *Upload {
	return &Upload{Content: bytes.NewReader([]byte("content")), Filename: "file.pdf"}
}
