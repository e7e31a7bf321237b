package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/trainhub/tms/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.Account{},
		&models.Category{},
		&models.TrainingProgram{},
		&models.ProgramTrainee{},
	)
}

// Ping checks database connectivity for health reporting.
func (r *GORMRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Account operations
func (r *GORMRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		slog.Error("Failed to create account", "error", err)
		return err
	}
	slog.Info("Account created", "account_id", account.ID, "email", account.Email, "role", account.Role)
	return nil
}

func (r *GORMRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get account by email", "error", err, "email", email)
		return nil, err
	}
	return &account, nil
}

func (r *GORMRepository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get account by ID", "error", err, "account_id", id)
		return nil, err
	}
	return &account, nil
}

func (r *GORMRepository) UpdateAccountRole(ctx context.Context, id string, role models.Role) error {
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		Update("role", role.String()).Error; err != nil {
		slog.Error("Failed to update account role", "error", err, "account_id", id)
		return err
	}
	slog.Info("Account role updated", "account_id", id, "role", role)
	return nil
}

// UpdateAccountCV stores the latest CV a trainee submitted with an
// application, so the profile always points at their current document.
func (r *GORMRepository) UpdateAccountCV(ctx context.Context, id, cvURL string) error {
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		Update("cv_url", cvURL).Error; err != nil {
		slog.Error("Failed to update account CV", "error", err, "account_id", id)
		return err
	}
	return nil
}

// DeleteAccount removes an account and applies the referential policies
// that soft deletes cannot delegate to the database: a supervisor's
// programs are detached and a trainee's applications are removed in the
// same transaction.
func (r *GORMRepository) DeleteAccount(ctx context.Context, account *models.Account) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch models.Role(account.Role) {
		case models.RoleSupervisor:
			if err := tx.Model(&models.TrainingProgram{}).
				Where("supervisor_id = ?", account.ID).
				Update("supervisor_id", nil).Error; err != nil {
				return err
			}
		case models.RoleTrainee:
			if err := tx.Where("trainee_id = ?", account.ID).
				Delete(&models.ProgramTrainee{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Account{}, "id = ?", account.ID).Error
	})
	if err != nil {
		slog.Error("Failed to delete account", "error", err, "account_id", account.ID)
		return err
	}
	slog.Info("Account deleted", "account_id", account.ID, "role", account.Role)
	return nil
}

// Refresh token operations. A single hashed value lives on the account
// row and is the only source of truth for the rotation protocol.

// SetRefreshToken overwrites the stored refresh token, invalidating any
// previously issued value. Used on every successful login.
func (r *GORMRepository) SetRefreshToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"refresh_token_hash":       tokenHash,
			"refresh_token_expires_at": expiresAt,
		}).Error; err != nil {
		slog.Error("Failed to store refresh token", "error", err, "account_id", accountID)
		return err
	}
	return nil
}

// RotateRefreshToken atomically swaps the stored refresh token. The
// account row is locked for the compare-and-swap so two concurrent
// refresh calls cannot both succeed with the same presented value.
// Returns false when the presented hash does not match the stored one or
// the stored token has expired.
func (r *GORMRepository) RotateRefreshToken(ctx context.Context, accountID, presentedHash, newHash string, expiresAt time.Time) (bool, error) {
	rotated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).First(&account).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if account.RefreshTokenHash == "" || account.RefreshTokenHash != presentedHash {
			return nil
		}
		if account.RefreshTokenExpiresAt == nil || account.RefreshTokenExpiresAt.Before(time.Now()) {
			return nil
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"refresh_token_hash":       newHash,
				"refresh_token_expires_at": expiresAt,
			}).Error; err != nil {
			return err
		}
		rotated = true
		return nil
	})
	if err != nil {
		slog.Error("Failed to rotate refresh token", "error", err, "account_id", accountID)
		return false, err
	}
	return rotated, nil
}

// ClearRefreshToken drops the stored refresh token (logout).
func (r *GORMRepository) ClearRefreshToken(ctx context.Context, accountID string) error {
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"refresh_token_hash":       "",
			"refresh_token_expires_at": nil,
		}).Error; err != nil {
		slog.Error("Failed to clear refresh token", "error", err, "account_id", accountID)
		return err
	}
	return nil
}

// Category operations
func (r *GORMRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		if isUniqueViolation(err) {
			return errDuplicate(err, "category name already exists")
		}
		slog.Error("Failed to create category", "error", err)
		return err
	}
	slog.Info("Category created", "category_id", category.ID, "name", category.Name)
	return nil
}

func (r *GORMRepository) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get category", "error", err, "category_id", id)
		return nil, err
	}
	return &category, nil
}

func (r *GORMRepository) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get category by name", "error", err, "name", name)
		return nil, err
	}
	return &category, nil
}
