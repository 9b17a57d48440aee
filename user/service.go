package user

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maksha19/message-be-v2/auth"
	resp "github.com/maksha19/message-be-v2/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// QuotaBootstrapper creates the zero-balance quota record for a fresh
// signup. Implemented by the subscription manager; injected as an
// interface to keep the dependency one-way.
type QuotaBootstrapper interface {
	EnsureDefault(ctx context.Context, userID string) error
}

// Options contains the configuration for Service router
type Options struct {
	Auth        *auth.Auth
	UserManager *Manager
	Quota       QuotaBootstrapper
	Logger      *zap.Logger
}

// Service is the user API router
type Service struct {
	Options
}

// SignupRequest is the model of a signup request
type SignupRequest struct {
	UserID   string `json:"userId" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

// LoginRequest is the model of a login request
type LoginRequest struct {
	UserID   string `json:"userId" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// NewService will create an instance of the user API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.UserManager == nil {
		return nil, fmt.Errorf("nil UserManager is invalid")
	}
	if option.Quota == nil {
		return nil, fmt.Errorf("nil Quota is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	logger := s.Logger.With(zap.String("UserID", req.UserID))

	existing, err := s.UserManager.GetByID(ctx, req.UserID)
	if err != nil {
		logger.Error("Unable to check existing user",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if existing != nil {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("User already exists"))
		return
	}

	u := &User{
		UserID:       req.UserID,
		Name:         req.Name,
		PasswordHash: s.Auth.HashPassword(req.Password),
		Phone:        req.Phone,
	}
	if err := s.UserManager.NewUser(ctx, u); err != nil {
		logger.Error("Unable to create user",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	if err := s.Quota.EnsureDefault(ctx, u.UserID); err != nil {
		logger.Error("Unable to create default subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, u)
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	logger := s.Logger.With(zap.String("UserID", req.UserID))

	u, err := s.UserManager.GetByID(ctx, req.UserID)
	if err != nil {
		logger.Error("Unable to look up user",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if u == nil || !u.IsActive || !s.Auth.VerifyPassword(req.Password, u.PasswordHash) {
		// same response for unknown user and wrong password
		resp.WriteError(w, r, resp.ErrForbidden().AddMessages("UserId or Password might be incorrect"))
		return
	}

	token, err := s.Auth.CreateTokenFromClaims(auth.Claims{
		ID: u.UserID,
	})
	if err != nil {
		logger.Error("Unable to issue token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	if err := s.Auth.RecordLogin(u.UserID); err != nil {
		// login record is best effort
		logger.Error("Unable to record login time",
			zap.Error(err),
		)
	}

	resp.WriteResponse(w, r, struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}{
		Name:  u.Name,
		Token: token,
	})
}

// Router will return the routes under user API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/signup", s.signup)
	r.Post("/login", s.login)

	return r
}
