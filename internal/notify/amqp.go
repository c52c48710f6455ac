package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// session объединяет соединение и канал брокера. closed срабатывает при обрыве канала или соединения.
type session struct {
	channel publisher
	closed  <-chan *amqp.Error
	close   func() error
}

func (s *session) alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *session) shutdown() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func dialSession(url, queue string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &session{
		channel: ch,
		closed:  ch.NotifyClose(make(chan *amqp.Error, 1)),
		close: func() error {
			chErr := ch.Close()
			if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				return err
			}
			if chErr != nil && !errors.Is(chErr, amqp.ErrClosed) {
				return chErr
			}
			return nil
		},
	}, nil
}

// AMQPSender публикует уведомления в очередь RabbitMQ, которую читает почтовый сервис.
// После обрыва соединения следующая отправка подключается к брокеру заново.
type AMQPSender struct {
	mu      sync.Mutex
	connect func() (*session, error)
	sess    *session
	queue   string
}

// NewAMQPSender подключается к брокеру и объявляет устойчивую очередь.
func NewAMQPSender(url, queue string) (*AMQPSender, error) {
	s := &AMQPSender{
		queue:   queue,
		connect: func() (*session, error) { return dialSession(url, queue) },
	}
	sess, err := s.connect()
	if err != nil {
		return nil, err
	}
	s.sess = sess
	return s, nil
}

// current возвращает живую сессию, при необходимости переподключаясь. Вызывается под s.mu.
func (s *AMQPSender) current() (*session, error) {
	if s.sess != nil && s.sess.alive() {
		return s.sess, nil
	}
	s.drop()
	if s.connect == nil {
		return nil, amqp.ErrClosed
	}
	sess, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	s.sess = sess
	return sess, nil
}

func (s *AMQPSender) drop() {
	if s.sess != nil {
		_ = s.sess.shutdown()
		s.sess = nil
	}
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    msg.CreatedAt,
		Type:         string(msg.Kind),
		Body:         body,
	}

	// amqp.Channel нельзя использовать для публикации из нескольких горутин одновременно.
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		sess, err := s.current()
		if err != nil {
			return err
		}

		err = sess.channel.PublishWithContext(ctx,
			"",      // exchange
			s.queue, // routing key
			false,   // mandatory
			false,   // immediate
			pub,
		)
		if err == nil {
			return nil
		}
		// Канал закрылся до того, как пришло уведомление: переподключаемся один раз.
		if !errors.Is(err, amqp.ErrClosed) || attempt > 0 {
			return fmt.Errorf("failed to publish message: %w", err)
		}
		s.drop()
	}
}

// Close закрывает канал и соединение.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connect = nil
	if s.sess == nil {
		return nil
	}
	err := s.sess.shutdown()
	s.sess = nil
	return err
}

// LogSender только записывает уведомление в лог. Используется, когда брокер не настроен.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("amount", msg.Amount),
	)
	return nil
}
