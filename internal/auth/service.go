package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

var ErrAdminExists = errors.New("admin_exists")

// AdminStore persists admins.
type AdminStore interface {
	CreateAdmin(ctx context.Context, admin *model.Admin) error
	FindAdminByEmail(ctx context.Context, email string) (model.Admin, error)
}

// Service signs admins up and in.
type Service struct {
	store AdminStore
}

// NewService creates a Service over the admin store.
func NewService(store AdminStore) *Service {
	return &Service{store: store}
}

// Signup creates an admin account.
func (service *Service) Signup(ctx context.Context, email string, password string) (model.Admin, error) {
	if _, emailErr := model.NormalizeAdminEmail(email); emailErr != nil {
		return model.Admin{}, emailErr
	}
	passwordHash, hashErr := HashPassword(password)
	if hashErr != nil {
		return model.Admin{}, hashErr
	}
	admin, adminErr := model.NewAdmin(email, passwordHash)
	if adminErr != nil {
		return model.Admin{}, adminErr
	}
	if createErr := service.store.CreateAdmin(ctx, &admin); createErr != nil {
		if errors.Is(createErr, storage.ErrAdminExists) {
			return model.Admin{}, ErrAdminExists
		}
		return model.Admin{}, fmt.Errorf("auth: create admin: %w", createErr)
	}
	return admin, nil
}

// Login checks credentials. Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (service *Service) Login(ctx context.Context, email string, password string) (model.Admin, error) {
	normalizedEmail, emailErr := model.NormalizeAdminEmail(email)
	if emailErr != nil {
		return model.Admin{}, ErrInvalidCredentials
	}
	admin, findErr := service.store.FindAdminByEmail(ctx, normalizedEmail)
	if findErr != nil {
		if errors.Is(findErr, storage.ErrRecordNotFound) {
			return model.Admin{}, ErrInvalidCredentials
		}
		return model.Admin{}, fmt.Errorf("auth: find admin: %w", findErr)
	}
	if checkErr := CheckPassword(admin.PasswordHash, password); checkErr != nil {
		return model.Admin{}, checkErr
	}
	return admin, nil
}
