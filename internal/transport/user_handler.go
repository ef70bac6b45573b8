package transport

import (
	"errors"
	"net/http"

	"inventa/internal/middleware"
	"inventa/internal/repository"
	"inventa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateUserRequest represents the user creation payload
type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone"`
	Type      string `json:"type" validate:"required,oneof=ADMIN VENDEDOR CLIENTE"`
	Active    bool   `json:"active"`
}

// SetUserActiveRequest represents the active flag toggle payload
type SetUserActiveRequest struct {
	ID     int64 `json:"id" validate:"required"`
	Active *bool `json:"active" validate:"required"`
}

// DeleteUserRequest represents the user deletion payload
type DeleteUserRequest struct {
	ID int64 `json:"id" validate:"required"`
}

// UserHandler handles HTTP requests for user management and the customer
// lookup consumed by the sales screens
type UserHandler struct {
	userService service.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes registers all user and customer routes
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/", h.SetActive)
		r.Delete("/", h.Delete)
	})
	r.Get("/api/customers", h.ListCustomers)
}

// List handles listing all users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, users)
}

// Create handles user creation
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("User creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.userService.CreateUser(r.Context(), service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Type:      req.Type,
		Active:    req.Active,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			middleware.RespondWithError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		if errors.Is(err, service.ErrInvalidUserType) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to create user", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.logger.Info("User created", zap.Int64("user_id", user.ID))
	middleware.RespondWithJSON(w, http.StatusCreated, user)
}

// SetActive handles toggling the active flag of a user
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetUserActiveRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("User update validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.userService.SetUserActive(r.Context(), req.ID, *req.Active)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("Failed to update user", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, user)
}

// Delete handles user deletion
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("User deletion validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.userService.DeleteUser(r.Context(), req.ID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("Failed to delete user", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	h.logger.Info("User deleted", zap.Int64("user_id", req.ID))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "user deleted successfully"})
}

// ListCustomers handles listing the customer view of CLIENTE users
func (h *UserHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.userService.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("Failed to list customers", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, customers)
}
