package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/outreach-dispatch/internal/logger"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers jobs to in-process subscribers with retry. Jobs are
// lost if the process exits.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    func(attempt int) time.Duration
	log        logger.Logger
	wg         sync.WaitGroup
}

func NewInMemoryQueue(maxRetries int, log logger.Logger) *InMemoryQueue {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*500) * time.Millisecond
		},
		log: log,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands the payload to every subscriber of topic.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Payload: payload, MaxRetries: q.maxRetries}
		q.wg.Add(1)
		go func(h func(payload any) error) {
			defer q.wg.Done()
			q.processJob(topic, h, job)
		}(handler)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job JobPayload) {
	log := q.log.WithFields(map[string]interface{}{"topic": topic})
	for {
		err := handler(job.Payload)
		if err == nil {
			log.Debug("job processed", map[string]interface{}{"attempt": job.RetryCount + 1})
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.WithError(err).Error("job permanently failed", map[string]interface{}{"attempts": job.RetryCount})
			return
		}
		log.WithError(err).Warn("job failed, retrying", map[string]interface{}{
			"attempt":     job.RetryCount,
			"max_retries": job.MaxRetries,
		})
		time.Sleep(q.backoff(job.RetryCount))
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, including retries.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}
