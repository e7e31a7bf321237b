package services

import (
	"context"
	"testing"

	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

func newEnrollmentFixture() (*fakeRepo, *EnrollmentService, *fakeFiles) {
	repo := newFakeRepo()
	files := &fakeFiles{}
	return repo, NewEnrollmentService(repo, files), files
}

func TestEnroll(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)
	actor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}

	enrollment, err := svc.Enroll(context.Background(), actor, program.ID, testUpload())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if enrollment.Status != models.EnrollmentPending {
		t.Errorf("new application should be pending, got %s", enrollment.Status)
	}
	if enrollment.CVURL == "" {
		t.Errorf("CV URL should be recorded")
	}
	account, err := repo.GetAccountByID(context.Background(), trainee.ID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.CVURL != enrollment.CVURL {
		t.Errorf("trainee profile should carry the latest CV, got %q want %q", account.CVURL, enrollment.CVURL)
	}

	// Applying twice to the same program is a conflict.
	_, err = svc.Enroll(context.Background(), actor, program.ID, nil)
	if !apperr.Is(err, apperr.CodeConflict) {
		t.Errorf("duplicate application should conflict, got %v", err)
	}
}

func TestEnrollOnlyApprovedPrograms(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	actor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}

	for _, status := range []models.ApprovalStatus{models.ApprovalPending, models.ApprovalRejected} {
		program := repo.addProgram(company.ID, category.ID, status)
		_, err := svc.Enroll(context.Background(), actor, program.ID, nil)
		if !apperr.Is(err, apperr.CodeForbidden) {
			t.Errorf("enrolling into a %s program should be forbidden, got %v", status, err)
		}
	}

	_, err := svc.Enroll(context.Background(), actor, "missing", nil)
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("enrolling into a missing program should be not found, got %v", err)
	}
}

func TestEnrollOnlyTrainees(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)

	actor := ActorContext{AccountID: company.ID, Role: models.RoleCompany}
	_, err := svc.Enroll(context.Background(), actor, program.ID, nil)
	if !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("company enrollment should be forbidden, got %v", err)
	}
}

func TestEnrollCleansUpCVOnInsertFailure(t *testing.T) {
	repo, svc, files := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)
	repo.failCreateEnrollment = apperr.New(apperr.CodeConflict, "trainee already applied to this program", nil)
	actor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}

	_, err := svc.Enroll(context.Background(), actor, program.ID, testUpload())
	if !apperr.Is(err, apperr.CodeConflict) {
		t.Fatalf("store conflict should pass through, got %v", err)
	}
	if len(files.saved) != 1 || len(files.deleted) != 1 || files.deleted[0] != files.saved[0] {
		t.Errorf("saved CV should be removed after insert failure, saved=%v deleted=%v", files.saved, files.deleted)
	}
}

func TestReviewEnrollment(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)
	traineeActor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}
	owner := ActorContext{AccountID: company.ID, Role: models.RoleCompany}

	if _, err := svc.Enroll(context.Background(), traineeActor, program.ID, nil); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	reviewed, err := svc.Review(context.Background(), owner, program.ID, trainee.ID, true)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if reviewed.Status != models.EnrollmentAccepted {
		t.Errorf("expected accepted, got %s", reviewed.Status)
	}

	// A decided application stays decided.
	_, err = svc.Review(context.Background(), owner, program.ID, trainee.ID, false)
	if !apperr.Is(err, apperr.CodeConflict) {
		t.Errorf("re-reviewing should conflict, got %v", err)
	}
}

func TestReviewEnrollmentOwnership(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	other := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)
	traineeActor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}

	if _, err := svc.Enroll(context.Background(), traineeActor, program.ID, nil); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	otherActor := ActorContext{AccountID: other.ID, Role: models.RoleCompany}
	_, err := svc.Review(context.Background(), otherActor, program.ID, trainee.ID, true)
	if !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("other company review should be forbidden, got %v", err)
	}

	_, err = svc.Review(context.Background(), otherActor, program.ID, "missing-trainee", true)
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("review of a missing application should be not found, got %v", err)
	}
}

func TestListEnrollments(t *testing.T) {
	repo, svc, _ := newEnrollmentFixture()
	company := repo.addAccount(models.RoleCompany)
	trainee := repo.addAccount(models.RoleTrainee)
	category := repo.addCategory("Software Engineering")
	program := repo.addProgram(company.ID, category.ID, models.ApprovalApproved)
	traineeActor := ActorContext{AccountID: trainee.ID, Role: models.RoleTrainee}
	owner := ActorContext{AccountID: company.ID, Role: models.RoleCompany}

	if _, err := svc.Enroll(context.Background(), traineeActor, program.ID, nil); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	page, err := svc.ListForProgram(context.Background(), owner, program.ID, 1, 20)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected 1 applicant, got %d", page.Total)
	}

	mine, err := svc.ListMine(context.Background(), traineeActor)
	if err != nil {
		t.Fatalf("list mine failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ProgramID != program.ID {
		t.Errorf("expected the trainee's own application, got %+v", mine)
	}

	// Non-owning companies cannot page through applicants.
	other := repo.addAccount(models.RoleCompany)
	_, err = svc.ListForProgram(context.Background(), ActorContext{AccountID: other.ID, Role: models.RoleCompany}, program.ID, 1, 20)
	if !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("other company should be forbidden, got %v", err)
	}
}
