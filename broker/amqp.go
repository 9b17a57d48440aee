package broker

import (
	"encoding/json"

	"github.com/maksha19/message-be-v2/event"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
)

const broadcastExchange string = "broadcast_events"

var _ event.Notifier = &AMQPNotifier{}

// AMQPNotifier publishes campaign milestones via RabbitMQ. Bodies are
// JSON documents; consumers (the dashboard frontend feed) bind per user.
type AMQPNotifier struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPNotifier returns a campaign Notifier over RabbitMQ
func NewAMQPNotifier(amqpURI string) (*AMQPNotifier, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	notifier := &AMQPNotifier{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := notifier.setupExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for broadcast events")
	}
	return notifier, nil
}

func (a *AMQPNotifier) setupExchange() error {
	return a.channel.ExchangeDeclare(
		broadcastExchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPNotifier) Close() {
	a.channel.Close()
	a.connection.Close()
}

type notification struct {
	Milestone string       `json:"milestone"`
	Event     *event.Event `json:"event"`
}

func (a *AMQPNotifier) publish(routingKey string, n notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode notification")
	}
	if err := a.channel.Publish(
		broadcastExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish notification")
	}
	return nil
}

// NotifyStarted announces a freshly started campaign
func (a *AMQPNotifier) NotifyStarted(e *event.Event) error {
	return a.publish(e.UserID+".started", notification{
		Milestone: "started",
		Event:     e,
	})
}

// NotifyCompleted announces a completed campaign
func (a *AMQPNotifier) NotifyCompleted(e *event.Event) error {
	return a.publish(e.UserID+".completed", notification{
		Milestone: "completed",
		Event:     e,
	})
}
