package services

import (
	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

// Authorization rules for every mutating operation. Each check is a pure
// function of the actor and the target, so the rules are testable without
// a request pipeline or a database. Unauthorized means no usable
// identity; Forbidden means a known identity that the rule refuses.

// CanCreateProgram allows companies to create programs for themselves and
// admins to create on behalf of any company. The effective owner is
// returned: for a company actor the CompanyID from the request body is
// ignored and the claim wins.
func CanCreateProgram(actor ActorContext, requestedCompanyID string) (string, error) {
	switch actor.Role {
	case models.RoleCompany:
		return actor.AccountID, nil
	case models.RoleAdmin:
		if requestedCompanyID == "" {
			return "", apperr.New(apperr.CodeValidation, "company_id is required when an admin creates a program", nil)
		}
		return requestedCompanyID, nil
	default:
		return "", apperr.New(apperr.CodeForbidden, "only companies and admins can create programs", nil)
	}
}

// CanEditProgram restricts edits to the owning company or an admin, and
// to programs still pending moderation.
func CanEditProgram(actor ActorContext, program *models.TrainingProgram) error {
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RoleCompany && actor.AccountID == program.CompanyID) {
		return apperr.New(apperr.CodeForbidden, "only the owning company or an admin can edit a program", nil)
	}
	if program.ApprovalStatus != models.ApprovalPending {
		return apperr.New(apperr.CodeForbidden, "only pending programs can be edited", nil)
	}
	return nil
}

// CanModerateProgram gates approve, reject, delete and bulk delete.
func CanModerateProgram(actor ActorContext) error {
	if actor.Role != models.RoleAdmin {
		return apperr.New(apperr.CodeForbidden, "only admins can moderate programs", nil)
	}
	return nil
}

// CanChangeRole gates the administrative role-change operation.
func CanChangeRole(actor ActorContext) error {
	if actor.Role != models.RoleAdmin {
		return apperr.New(apperr.CodeForbidden, "only admins can change account roles", nil)
	}
	return nil
}

// CanDeleteAccount gates account deletion.
func CanDeleteAccount(actor ActorContext) error {
	if actor.Role != models.RoleAdmin {
		return apperr.New(apperr.CodeForbidden, "only admins can delete accounts", nil)
	}
	return nil
}

// CanEnroll restricts applications to trainee accounts.
func CanEnroll(actor ActorContext) error {
	if actor.Role != models.RoleTrainee {
		return apperr.New(apperr.CodeForbidden, "only trainees can apply to programs", nil)
	}
	return nil
}

// CanReviewEnrollment permits only the company owning the parent program
// to accept or reject an applicant.
func CanReviewEnrollment(actor ActorContext, program *models.TrainingProgram) error {
	if actor.Role != models.RoleCompany || actor.AccountID != program.CompanyID {
		return apperr.New(apperr.CodeForbidden, "only the company owning the program can review applications", nil)
	}
	return nil
}

// CanViewProgramApplicants mirrors the review rule for the read side.
func CanViewProgramApplicants(actor ActorContext, program *models.TrainingProgram) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	return CanReviewEnrollment(actor, program)
}
