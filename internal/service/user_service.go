package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.Guide, error)
}

// NewIdentityRequest describes the principal provisioned for an EXTERNAL applicant.
type NewIdentityRequest struct {
	Email    string `validate:"required,email"`
	FullName string
	Password string `validate:"required"`
}

// UserService prepares principals and looks up faculty guides.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	cost      int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, cost: bcrypt.DefaultCost}
}

// NewApplicantIdentity builds an unsaved APPLICANT principal with a hashed password. The caller
// persists it inside the transition that links it to an application.
func (s *UserService) NewApplicantIdentity(ctx context.Context, req NewIdentityRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid applicant identity")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "an account already exists for "+req.Email)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = req.Email
	}
	return &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     fullName,
		Role:         models.RoleApplicant,
		Active:       true,
		PasswordHash: string(passwordHash),
	}, nil
}

// Guide returns an active FACULTY user by id.
func (s *UserService) Guide(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "guide not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guide")
	}
	if !user.Active || user.Role != models.RoleFaculty {
		return nil, appErrors.Clone(appErrors.ErrValidation, "guide must be an active FACULTY user")
	}
	return user, nil
}

// ListGuides returns the faculty available for allocation.
func (s *UserService) ListGuides(ctx context.Context) ([]models.Guide, error) {
	guides, err := s.repo.ListActiveByRole(ctx, models.RoleFaculty)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list guides")
	}
	if guides == nil {
		guides = []models.Guide{}
	}
	return guides, nil
}
