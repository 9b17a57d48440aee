package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/maksha19/message-be-v2/agent"
	"github.com/maksha19/message-be-v2/engine"
	"github.com/maksha19/message-be-v2/event"
	"github.com/maksha19/message-be-v2/instance"
	resp "github.com/maksha19/message-be-v2/response"
	"github.com/maksha19/message-be-v2/subscription"

	"go.uber.org/zap"
)

// Handler executes a single action. A nil *resp.Error means success and the
// returned value is the result payload.
type Handler func(ctx context.Context, req *Request) (interface{}, *resp.Error)

type handlerEntry struct {
	class   subscription.ActionClass
	guarded bool
	fn      Handler
}

// DispatcherOptions contains the configuration for the Dispatcher
type DispatcherOptions struct {
	SubscriptionManager *subscription.Manager
	Provisioner         *instance.Provisioner
	Prober              *instance.Prober
	AgentClient         *agent.Client
	EventManager        *event.Manager
	Logger              *zap.Logger
}

// Dispatcher maps an inbound action to the component operation behind it.
// Every action except a bare message send runs the quota guard first; the
// send path skips it because the agent round-trip is its own gate and the
// charge lands after a confirmed delivery.
type Dispatcher struct {
	DispatcherOptions
	handlers map[Action]handlerEntry
}

// NewDispatcher will return a Dispatcher with the full action table wired
func NewDispatcher(option DispatcherOptions) (*Dispatcher, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Provisioner == nil {
		return nil, fmt.Errorf("nil Provisioner is invalid")
	}
	if option.Prober == nil {
		return nil, fmt.Errorf("nil Prober is invalid")
	}
	if option.AgentClient == nil {
		return nil, fmt.Errorf("nil AgentClient is invalid")
	}
	if option.EventManager == nil {
		return nil, fmt.Errorf("nil EventManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	d := &Dispatcher{
		DispatcherOptions: option,
	}
	d.handlers = map[Action]handlerEntry{
		ActionCreate:            {subscription.EngineClass, true, d.create},
		ActionStatus:            {subscription.EngineClass, true, d.status},
		ActionStartEngine:       {subscription.EngineClass, true, d.startEngine},
		ActionPairingCode:       {subscription.EngineClass, true, d.pairingCode},
		ActionLoginStatus:       {subscription.EngineClass, true, d.loginStatus},
		ActionStartBroadcast:    {subscription.MessageClass, true, d.startBroadcast},
		ActionSendMessage:       {subscription.MessageClass, false, d.sendMessage},
		ActionCompleteBroadcast: {subscription.MessageClass, true, d.completeBroadcast},
		ActionLogout:            {subscription.EngineClass, true, d.logout},
		ActionTerminate:         {subscription.EngineClass, true, d.terminate},
	}
	return d, nil
}

// Dispatch authorizes and executes one command request
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	entry, ok := d.handlers[req.Action]
	if !ok {
		return nil, resp.ErrBadRequest().
			AddMessages(fmt.Sprintf("Unsupported action %q", req.Action))
	}

	if entry.guarded {
		if err := d.SubscriptionManager.Authorize(ctx, req.UserID, entry.class); err != nil {
			return nil, d.translate(req, err)
		}
	}

	return entry.fn(ctx, req)
}

// translate maps component sentinels and typed errors onto the response
// taxonomy. Anything unrecognized is logged and surfaced as internal.
func (d *Dispatcher) translate(req *Request, err error) *resp.Error {
	var agentErr *agent.Error
	var engineErr *engine.Error

	switch {
	case errors.Is(err, subscription.ErrUserNotFound),
		errors.Is(err, subscription.ErrUserInactive):
		return resp.ErrForbidden()
	case errors.Is(err, subscription.ErrQuotaExhausted):
		return resp.ErrQuotaExhausted()
	case errors.Is(err, instance.ErrAlreadyActive):
		return resp.ErrConflict().
			WithMessage("An active instance already exists for this user")
	case errors.Is(err, instance.ErrNoActiveInstance):
		return resp.ErrNoActiveInstance()
	case errors.Is(err, instance.ErrInstanceNotFound):
		return resp.ErrNotFound().
			AddMessages("No matching running instance")
	case errors.Is(err, instance.ErrNotRegistered):
		return resp.ErrProvider().
			AddMessages("Instance is not yet registered for remote commands")
	case errors.Is(err, agent.ErrEndpointMissing),
		errors.Is(err, agent.ErrEmptyPayload):
		return resp.ErrBadRequest().AddMessages(err.Error())
	case errors.Is(err, event.ErrMissingIdentifiers):
		return resp.ErrBadRequest().AddMessages(err.Error())
	case errors.Is(err, event.ErrEventNotFound):
		return resp.ErrNotFound().AddMessages(err.Error())
	case errors.As(err, &agentErr):
		return resp.ErrRemoteAgent(agentErr.StatusCode)
	case errors.As(err, &engineErr):
		if engineErr.Kind == engine.ErrKindUnauthorized {
			return resp.ErrForbidden()
		}
		return resp.ErrProvider()
	}

	d.Logger.Error("Unable to dispatch command",
		zap.String("UserID", req.UserID),
		zap.String("Action", string(req.Action)),
		zap.Error(err),
	)
	return resp.ErrUnexpected()
}

func (d *Dispatcher) create(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	inst, err := d.Provisioner.Create(ctx, req.UserID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	// charge one engine hour only after the launch succeeded
	if err := d.SubscriptionManager.ConsumeEngineHour(ctx, req.UserID, 1); err != nil {
		d.Logger.Error("Unable to charge engine hour after launch",
			zap.String("UserID", req.UserID),
			zap.Error(err),
		)
	}

	return inst, nil
}

func (d *Dispatcher) status(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	if len(req.InstanceID) == 0 {
		return nil, resp.ErrBadRequest().AddMessages("instanceId is required")
	}

	probe, err := d.Prober.Probe(ctx, req.UserID, req.InstanceID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	if probe.Ready {
		if err := d.Provisioner.RecordRunning(ctx, req.UserID, req.InstanceID); err != nil {
			d.Logger.Error("Unable to record running state",
				zap.String("UserID", req.UserID),
				zap.String("InstanceID", req.InstanceID),
				zap.Error(err),
			)
		}
	}

	return probe, nil
}

func (d *Dispatcher) startEngine(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	if len(req.InstanceID) == 0 {
		return nil, resp.ErrBadRequest().AddMessages("instanceId is required")
	}

	commandID, err := d.Provisioner.StartAgent(ctx, req.UserID, req.InstanceID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	return map[string]string{
		"commandId": commandID,
	}, nil
}

func (d *Dispatcher) pairingCode(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	code, err := d.AgentClient.FetchPairingCode(ctx, req.Endpoint)
	if err != nil {
		return nil, d.translate(req, err)
	}

	return map[string]string{
		"qrCode": code,
	}, nil
}

func (d *Dispatcher) loginStatus(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	if len(req.InstanceID) == 0 {
		return nil, resp.ErrBadRequest().AddMessages("instanceId is required")
	}

	loggedIn, err := d.AgentClient.PollLoginStatus(ctx, req.Endpoint, req.UserID, req.InstanceID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	return map[string]bool{
		"loginStatus": loggedIn,
	}, nil
}

func (d *Dispatcher) startBroadcast(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	if req.Broadcast == nil {
		return nil, resp.ErrBadRequest().AddMessages("broadcast parameters are required")
	}

	e, err := d.EventManager.Start(ctx, event.StartOption{
		UserID:         req.UserID,
		InstanceID:     req.InstanceID,
		Title:          req.Broadcast.Title,
		Description:    req.Broadcast.Description,
		RecipientCount: req.Broadcast.RecipientCount,
		Metadata:       req.Broadcast.Metadata,
		Payload:        req.Broadcast.Payload,
		PayloadType:    "application/json",
	})
	if err != nil {
		return nil, d.translate(req, err)
	}

	return e, nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	reply, err := d.AgentClient.SendMessage(ctx, req.Endpoint, req.Message)
	if err != nil {
		return nil, d.translate(req, err)
	}

	// the delivery already happened; a failed charge is logged, not refunded
	if err := d.SubscriptionManager.ConsumeMessage(ctx, req.UserID, 1); err != nil {
		d.Logger.Error("Unable to charge message after delivery",
			zap.String("UserID", req.UserID),
			zap.Error(err),
		)
	}

	return reply, nil
}

func (d *Dispatcher) completeBroadcast(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	if req.Broadcast == nil {
		return nil, resp.ErrBadRequest().AddMessages("broadcast parameters are required")
	}
	if len(req.EventID) == 0 {
		return nil, resp.ErrBadRequest().AddMessages("eventId is required")
	}

	e, err := d.EventManager.Complete(ctx, event.CompleteOption{
		UserID:       req.UserID,
		EventID:      req.EventID,
		SuccessCount: req.Broadcast.SuccessCount,
		FailureCount: req.Broadcast.FailureCount,
	})
	if err != nil {
		return nil, d.translate(req, err)
	}

	return e, nil
}

func (d *Dispatcher) logout(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	instanceID, err := d.AgentClient.LogoutAndTerminate(ctx, req.Endpoint, req.UserID, req.InstanceID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	return map[string]string{
		"instanceId": instanceID,
	}, nil
}

func (d *Dispatcher) terminate(ctx context.Context, req *Request) (interface{}, *resp.Error) {
	instanceID, err := d.Provisioner.Terminate(ctx, req.UserID, req.InstanceID)
	if err != nil {
		return nil, d.translate(req, err)
	}

	return map[string]string{
		"instanceId": instanceID,
	}, nil
}
