package services

import (
	"context"
	"log/slog"

	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

// AccountAdminStore is the persistence surface of the administrative
// account operations. Satisfied by *repository.GORMRepository.
type AccountAdminStore interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	UpdateAccountRole(ctx context.Context, id string, role models.Role) error
	DeleteAccount(ctx context.Context, account *models.Account) error
	CountProgramsByCompany(ctx context.Context, companyID string) (int64, error)
	CountProgramsBySupervisor(ctx context.Context, supervisorID string) (int64, error)
}

type AccountService struct {
	store AccountAdminStore
}

func NewAccountService(store AccountAdminStore) *AccountService {
	return &AccountService{store: store}
}

// ChangeRole switches an account's role. A company still owning programs
// or a supervisor still assigned to programs blocks the change; the
// dependent rows have to be removed or reassigned first.
func (s *AccountService) ChangeRole(ctx context.Context, actor ActorContext, accountID, newRole string) (*models.Account, error) {
	if err := CanChangeRole(actor); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(newRole)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "invalid role", err)
	}

	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get account", err)
	}
	if account == nil {
		return nil, apperr.New(apperr.CodeNotFound, "account not found", nil)
	}
	if models.Role(account.Role) == role {
		return account, nil
	}

	if err := s.checkNoDependents(ctx, account); err != nil {
		return nil, err
	}

	if err := s.store.UpdateAccountRole(ctx, accountID, role); err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to update role", err)
	}
	account.Role = role.String()
	slog.Info("Account role changed", "account_id", accountID, "role", role)
	return account, nil
}

// Delete removes an account. Companies with owned programs are refused;
// supervisors are detached from their programs; trainee applications are
// removed alongside the account.
func (s *AccountService) Delete(ctx context.Context, actor ActorContext, accountID string) error {
	if err := CanDeleteAccount(actor); err != nil {
		return err
	}
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return apperr.New(apperr.CodeInternal, "failed to get account", err)
	}
	if account == nil {
		return apperr.New(apperr.CodeNotFound, "account not found", nil)
	}

	if models.Role(account.Role) == models.RoleCompany {
		count, err := s.store.CountProgramsByCompany(ctx, accountID)
		if err != nil {
			return apperr.New(apperr.CodeInternal, "failed to count programs", err)
		}
		if count > 0 {
			return apperr.New(apperr.CodeIntegrityBlock, "company still owns training programs", nil)
		}
	}

	if err := s.store.DeleteAccount(ctx, account); err != nil {
		return apperr.New(apperr.CodeInternal, "failed to delete account", err)
	}
	return nil
}

// checkNoDependents is the role-change integrity guard.
func (s *AccountService) checkNoDependents(ctx context.Context, account *models.Account) error {
	switch models.Role(account.Role) {
	case models.RoleCompany:
		count, err := s.store.CountProgramsByCompany(ctx, account.ID)
		if err != nil {
			return apperr.New(apperr.CodeInternal, "failed to count programs", err)
		}
		if count > 0 {
			return apperr.New(apperr.CodeIntegrityBlock, "company still owns training programs", nil)
		}
	case models.RoleSupervisor:
		count, err := s.store.CountProgramsBySupervisor(ctx, account.ID)
		if err != nil {
			return apperr.New(apperr.CodeInternal, "failed to count supervised programs", err)
		}
		if count > 0 {
			return apperr.New(apperr.CodeIntegrityBlock, "supervisor is still assigned to training programs", nil)
		}
	}
	return nil
}
