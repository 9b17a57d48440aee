package command

import (
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

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// Service is the command API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the command API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Dispatcher == nil {
		return nil, fmt.Errorf("nil Dispatcher is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	req.UserID = claims.ID

	result, respErr := s.Dispatcher.Dispatch(ctx, &req)
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}

	resp.WriteResponse(w, r, result)
}

// Router will return the routes under command API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.dispatch)

	return r
}
