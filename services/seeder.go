package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trainhub/tms/models"
	"github.com/trainhub/tms/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the initial admin account and default categories
// (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := models.Account{
		Email:    "admin@trainhub.local",
		Password: string(hashedPassword),
		FullName: "Platform Admin",
		Role:     models.RoleAdmin.String(),
	}
	existing, err := s.repo.GetAccountByEmail(ctx, admin.Email)
	if err != nil {
		return fmt.Errorf("failed to check admin account: %w", err)
	}
	if existing == nil {
		if err := s.repo.CreateAccount(ctx, &admin); err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
		slog.Info("Admin account seeded", "email", admin.Email)
	}

	categories := []models.Category{
		{Name: "Software Engineering", Description: "Programming, testing and delivery practices"},
		{Name: "Data & Analytics", Description: "Data engineering, analysis and machine learning"},
		{Name: "Management", Description: "Leadership, project and product management"},
		{Name: "Design", Description: "UX, UI and product design"},
	}
	for _, category := range categories {
		found, err := s.repo.GetCategoryByName(ctx, category.Name)
		if err != nil {
			return fmt.Errorf("failed to check category %q: %w", category.Name, err)
		}
		if found != nil {
			continue
		}
		category := category
		if err := s.repo.CreateCategory(ctx, &category); err != nil {
			slog.Error("Failed to seed category", "name", category.Name, "error", err)
		}
	}

	slog.Info("Database seeding completed")
	return nil
}
