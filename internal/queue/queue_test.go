package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-dispatch/internal/logger"
)

func newTestQueue(t *testing.T, maxRetries int) *InMemoryQueue {
	q := NewInMemoryQueue(maxRetries, logger.NewTestLogger(t))
	q.backoff = func(int) time.Duration { return 0 }
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue(t, 1)
	assert.Error(t, q.Publish("runs", "x"))
}

func TestInMemoryQueue_Delivers(t *testing.T) {
	q := newTestQueue(t, 1)
	var got any
	require.NoError(t, q.Subscribe("runs", func(p any) error {
		got = p
		return nil
	}))

	require.NoError(t, q.Publish("runs", "job-1"))
	q.Wait()
	assert.Equal(t, "job-1", got)
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t, 3)
	var calls int32
	require.NoError(t, q.Subscribe("runs", func(any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("temporary")
		}
		return nil
	}))

	require.NoError(t, q.Publish("runs", 1))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)
	var calls int32
	require.NoError(t, q.Subscribe("runs", func(any) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish("runs", 1))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type fakeAck struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

type republished struct {
	topic string
	body  []byte
	retry int
}

func newTestRabbit(t *testing.T, maxRetries int, pubErr error) (*RabbitQueue, *[]republished) {
	var out []republished
	q := &RabbitQueue{maxRetries: maxRetries, log: logger.NewTestLogger(t)}
	q.publish = func(topic string, body []byte, retry int) error {
		out = append(out, republished{topic, body, retry})
		return pubErr
	}
	return q, &out
}

func TestRabbitQueue_AckOnSuccess(t *testing.T) {
	q, pubs := newTestRabbit(t, 3, nil)
	ack := &fakeAck{}
	var body []byte

	q.process("runs", amqp.Delivery{Acknowledger: ack, Body: []byte(`{"campaign_id":"c1"}`)}, func(p any) error {
		body = p.([]byte)
		return nil
	})

	assert.JSONEq(t, `{"campaign_id":"c1"}`, string(body))
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, *pubs)
}

func TestRabbitQueue_RepublishesWithRetryHeader(t *testing.T) {
	q, pubs := newTestRabbit(t, 3, nil)
	ack := &fakeAck{}

	q.process("runs", amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte("{}"),
		Headers:      amqp.Table{retryHeader: int32(1)},
	}, func(any) error { return errors.New("db down") })

	require.Len(t, *pubs, 1)
	assert.Equal(t, 2, (*pubs)[0].retry)
	assert.Equal(t, "runs", (*pubs)[0].topic)
	assert.Equal(t, 1, ack.acks)
}

func TestRabbitQueue_DropsAfterMaxRetries(t *testing.T) {
	q, pubs := newTestRabbit(t, 3, nil)
	ack := &fakeAck{}

	q.process("runs", amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte("{}"),
		Headers:      amqp.Table{retryHeader: int64(3)},
	}, func(any) error { return errors.New("db down") })

	assert.Empty(t, *pubs)
	assert.Equal(t, 1, ack.acks)
}

func TestRabbitQueue_NacksWhenRepublishFails(t *testing.T) {
	q, _ := newTestRabbit(t, 3, errors.New("channel closed"))
	ack := &fakeAck{}

	q.process("runs", amqp.Delivery{Acknowledger: ack, Body: []byte("{}")}, func(any) error { return errors.New("x") })

	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeued)
}

func TestRabbitQueue_PublishEncodesJSON(t *testing.T) {
	q, pubs := newTestRabbit(t, 3, nil)
	require.NoError(t, q.Publish("runs", map[string]string{"campaign_id": "c1"}))
	require.Len(t, *pubs, 1)
	assert.JSONEq(t, `{"campaign_id":"c1"}`, string((*pubs)[0].body))
	assert.Equal(t, 0, (*pubs)[0].retry)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 4, retryCount(amqp.Table{retryHeader: int64(4)}))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "bad"}))
}

func TestRabbitQueue_WaitBlocksUntilJobFinishes(t *testing.T) {
	q, _ := newTestRabbit(t, 3, nil)
	ack := &fakeAck{}
	started := make(chan struct{})
	release := make(chan struct{})

	go q.process("runs", amqp.Delivery{Acknowledger: ack, Body: []byte("{}")}, func(any) error {
		close(started)
		<-release
		return nil
	})
	<-started

	waited := make(chan struct{})
	go func() {
		q.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while the job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the job finished")
	}
	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, 1, ack.acks)
}

func TestRabbitQueue_StopConsumingWithoutChannel(t *testing.T) {
	q, _ := newTestRabbit(t, 3, nil)
	assert.NoError(t, q.StopConsuming())
	q.Wait()
}
