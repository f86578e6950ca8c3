package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-dispatch/internal/logger"
)

const retryHeader = "x-retry-count"

// RabbitQueue publishes JSON payloads to durable queues named after the
// topic. Subscribers receive the raw message body ([]byte). A failed job is
// acked and republished with an incremented retry header until MaxRetries
// is reached.
type RabbitQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	maxRetries int
	log        logger.Logger

	mu        sync.Mutex
	declared  map[string]bool
	consumers []string
	publish   func(topic string, body []byte, retry int) error

	// wg counts consumer loops and jobs in flight.
	wg sync.WaitGroup
}

func DialRabbit(url string, maxRetries int, log logger.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	q := &RabbitQueue{
		conn:       conn,
		ch:         ch,
		maxRetries: maxRetries,
		log:        log,
		declared:   map[string]bool{},
	}
	q.publish = q.channelPublish
	return q, nil
}

func (q *RabbitQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *RabbitQueue) channelPublish(topic string, body []byte, retry int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retry)},
		Body:         body,
	})
}

func (q *RabbitQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.publish(topic, body, 0)
}

func (q *RabbitQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	tag := fmt.Sprintf("%s-%d", topic, len(q.consumers))
	msgs, err := q.ch.Consume(
		topic,
		tag,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	q.consumers = append(q.consumers, tag)
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.process(topic, d, handler)
		}
		q.log.Info("consumer stopped", map[string]interface{}{"topic": topic})
	}()
	return nil
}

func (q *RabbitQueue) process(topic string, d amqp.Delivery, handler func(payload any) error) {
	q.wg.Add(1)
	defer q.wg.Done()

	log := q.log.WithFields(map[string]interface{}{"topic": topic})
	err := handler(d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retry := retryCount(d.Headers)
	if retry >= q.maxRetries {
		log.WithError(err).Error("job permanently failed", map[string]interface{}{"attempts": retry + 1})
		_ = d.Ack(false)
		return
	}
	if perr := q.publish(topic, d.Body, retry+1); perr != nil {
		log.WithError(perr).Error("failed to republish job, requeueing", nil)
		_ = d.Nack(false, true)
		return
	}
	log.WithError(err).Warn("job failed, republished", map[string]interface{}{"attempt": retry + 1})
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// StopConsuming cancels every consumer. Deliveries already received are
// still processed; call Wait to block until they are done.
func (q *RabbitQueue) StopConsuming() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		return nil
	}
	var errs []error
	for _, tag := range q.consumers {
		if err := q.ch.Cancel(tag, false); err != nil {
			errs = append(errs, fmt.Errorf("cancel consumer %s: %w", tag, err))
		}
	}
	q.consumers = nil
	return errors.Join(errs...)
}

// Wait blocks until consumer loops have stopped and in-flight jobs have
// been acked or requeued.
func (q *RabbitQueue) Wait() {
	q.wg.Wait()
}

func (q *RabbitQueue) Close() error {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
