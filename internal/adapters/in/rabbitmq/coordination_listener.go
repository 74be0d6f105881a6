package rabbitmq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/in"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// CoordinationListener принимает call-off и события каналов из очередей.
type CoordinationListener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	useCase in.CoordinationUseCase
	cfg     *config.Config
	logger  out.LoggerPort
}

// errMalformed - сообщение, которое никогда не будет обработано, в очередь не возвращается.
var errMalformed = errors.New("malformed message")

func NewCoordinationListener(useCase in.CoordinationUseCase, cfg *config.Config, logger out.LoggerPort) (*CoordinationListener, error) {
	if !cfg.RabbitMq.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, listener will not be started",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMq.AmqpUri)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return &CoordinationListener{
		conn:    conn,
		channel: channel,
		useCase: useCase,
		cfg:     cfg,
		logger:  logger.WithModule("CoordinationListener"),
	}, nil
}

func (l *CoordinationListener) Start(ctx context.Context) error {
	queues := l.cfg.RabbitMq.QueueConfig

	err := l.startQueue(ctx, queues.CallOffQueueName, queues.CallOffQueueBind, queues.CallOffExchange, l.processCallOffMessage)
	if err != nil {
		return err
	}
	l.logger.Info("call_off.queue.started", out.LogFields{
		"queue": queues.CallOffQueueName,
	})

	err = l.startQueue(ctx, queues.ChannelEventQueueName, queues.ChannelEventQueueBind, queues.ChannelEventExchange, l.processChannelEventMessage)
	if err != nil {
		return err
	}
	l.logger.Info("channel_event.queue.started", out.LogFields{
		"queue": queues.ChannelEventQueueName,
	})

	return nil
}

func (l *CoordinationListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}

	if err := l.channel.Close(); err != nil {
		return err
	}
	return l.conn.Close()
}

func (l *CoordinationListener) startQueue(ctx context.Context, name, bind, exchange string, process func(context.Context, []byte) error) error {
	queue, err := l.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	// Без exchange очередь слушает default exchange по своему имени
	if exchange != "" {
		if err := l.channel.QueueBind(queue.Name, bind, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.logger.Warn("rabbitmq.queue.closed", out.LogFields{
						"queue": queue.Name,
					})
					return
				}
				l.settle(queue.Name, msg, process(ctx, msg.Body))
			}
		}
	}()

	return nil
}

func (l *CoordinationListener) settle(queue string, msg amqp.Delivery, err error) {
	ack, requeue := disposition(err)
	if err != nil && !ack {
		l.logger.Error("rabbitmq.message.failed", out.LogFields{
			"queue":   queue,
			"requeue": requeue,
			"error":   err.Error(),
		})
	}

	if ack {
		msg.Ack(false)
		return
	}
	msg.Nack(false, requeue)
}

// disposition: успех и дубликат подтверждаются, битые сообщения
// отбрасываются, временные сбои возвращаются в очередь.
func disposition(err error) (ack bool, requeue bool) {
	switch {
	case err == nil, errors.Is(err, domain.ErrDuplicateEvent):
		return true, false
	case errors.Is(err, errMalformed),
		errors.Is(err, domain.ErrInvalidCallOff),
		errors.Is(err, domain.ErrInvalidEvent),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrShiftNotFound):
		return false, false
	}
	return false, true
}
