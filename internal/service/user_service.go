package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventa/internal/domain"
	"inventa/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt hashing
const BcryptCost = 10

var (
	ErrInvalidUserType = errors.New("invalid user type")
)

// CreateUserInput carries the fields needed to create a user account
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Type      string
	Active    bool
}

// UserService defines the user management operations. It also exposes the
// customer view consumed by the sale workflow and the sales screens.
type UserService interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListCustomers(ctx context.Context) ([]*domain.Customer, error)
}

type userService struct {
	userRepo repository.UserRepository
}

// NewUserService creates a new instance of UserService
func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// CreateUser creates a new account with a bcrypt-hashed password
func (s *userService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	switch input.Type {
	case domain.UserTypeAdmin, domain.UserTypeSeller, domain.UserTypeCustomer:
	default:
		return nil, fmt.Errorf("%q: %w", input.Type, ErrInvalidUserType)
	}

	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, repository.ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Phone:        input.Phone,
		Type:         input.Type,
		Active:       input.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// ListUsers returns all users, most recent first
func (s *userService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetUserActive toggles the active flag of a user
func (s *userService) SetUserActive(ctx context.Context, id int64, active bool) (*domain.User, error) {
	return s.userRepo.SetActive(ctx, id, active)
}

// DeleteUser removes a user account
func (s *userService) DeleteUser(ctx context.Context, id int64) error {
	return s.userRepo.Delete(ctx, id)
}

// ListCustomers returns the customer view of all CLIENTE users
func (s *userService) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	customers, err := s.userRepo.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}
