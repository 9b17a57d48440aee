package dashboard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/maksha19/message-be-v2/auth"
	"github.com/maksha19/message-be-v2/event"
	"github.com/maksha19/message-be-v2/instance"
	resp "github.com/maksha19/message-be-v2/response"
	"github.com/maksha19/message-be-v2/subscription"
	"github.com/maksha19/message-be-v2/user"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

const (
	recentEventWindow = 30 * 24 * time.Hour
	recentEventLimit  = 50
)

// Options contains the configuration for Service router
type Options struct {
	Auth                *auth.Auth
	UserManager         *user.Manager
	SubscriptionManager *subscription.Manager
	InstanceManager     *instance.Manager
	EventManager        *event.Manager
	Logger              *zap.Logger
}

// Service aggregates account, quota, connection and campaign data into one
// summary read for the frontend landing page
type Service struct {
	Options
}

// Summary is the dashboard response model
type Summary struct {
	Name            string        `json:"name"`
	Phone           string        `json:"phone"`
	LastLogin       *time.Time    `json:"lastLogin,omitempty"`
	Quota           QuotaSummary  `json:"quota"`
	Connection      Connection    `json:"connection"`
	RecentBroadcast []event.Event `json:"recentBroadcast"`
}

// QuotaSummary mirrors the subscription counters
type QuotaSummary struct {
	MessageCountUsed int64 `json:"messageCountUsed"`
	MessageCountLeft int64 `json:"messageCountLeft"`
	EngineHourUsed   int64 `json:"engineHourUsed"`
	EngineHourLeft   int64 `json:"engineHourLeft"`
}

// Connection describes the user's current instance, if any
type Connection struct {
	HasActiveInstance bool       `json:"hasActiveInstance"`
	InstanceID        string     `json:"instanceId,omitempty"`
	State             string     `json:"state,omitempty"`
	IsPaired          bool       `json:"isPaired"`
	PairedTime        *time.Time `json:"pairedTime,omitempty"`
}

// NewService will create an instance of the dashboard API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.UserManager == nil {
		return nil, fmt.Errorf("nil UserManager is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.InstanceManager == nil {
		return nil, fmt.Errorf("nil InstanceManager is invalid")
	}
	if option.EventManager == nil {
		return nil, fmt.Errorf("nil EventManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

func (s *Service) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	userID := claims.ID

	logger := s.Logger.With(zap.String("UserID", userID))

	u, err := s.UserManager.GetByID(ctx, userID)
	if err != nil {
		logger.Error("Unable to look up user",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if u == nil {
		resp.WriteError(w, r, resp.ErrForbidden())
		return
	}

	summary := Summary{
		Name:            u.Name,
		Phone:           u.Phone,
		RecentBroadcast: make([]event.Event, 0),
	}

	if last, err := s.Auth.LastLogin(userID); err != nil {
		// last login is decorative
		logger.Error("Unable to read last login time",
			zap.Error(err),
		)
	} else if !last.IsZero() {
		summary.LastLogin = &last
	}

	sub, err := s.SubscriptionManager.Get(ctx, userID)
	if err != nil {
		logger.Error("Unable to look up subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if sub != nil {
		summary.Quota = QuotaSummary{
			MessageCountUsed: sub.MessageCountUsed,
			MessageCountLeft: sub.MessageCountLeft,
			EngineHourUsed:   sub.EngineHourUsed,
			EngineHourLeft:   sub.EngineHourLeft,
		}
	}

	active, err := s.InstanceManager.GetActive(ctx, userID)
	if err != nil {
		logger.Error("Unable to look up active instance",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if active != nil {
		summary.Connection = Connection{
			HasActiveInstance: true,
			InstanceID:        active.InstanceID,
			State:             active.State,
			IsPaired:          active.PairedTime != nil,
			PairedTime:        active.PairedTime,
		}
	}

	events, err := s.EventManager.List(ctx, userID, time.Now().Add(-recentEventWindow), recentEventLimit)
	if err != nil {
		logger.Error("Unable to list recent broadcasts",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	summary.RecentBroadcast = events

	resp.WriteResponse(w, r, summary)
}

// Router will return the routes under dashboard API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.summary)

	return r
}
