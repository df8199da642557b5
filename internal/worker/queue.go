// internal/worker/queue.go
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Queue owns the NATS connection and the durable JetStream pull
// subscription the worker slots fetch from.
type Queue struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// Connect dials NATS, ensures the job stream exists, and binds a durable
// pull consumer. MaxDeliver caps queue-native redelivery; after that the
// worker marks the record failed and terminates the message.
func Connect(url, stream, subject, durable string, maxDeliver int) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := ensureStream(nc, stream, subject)
	if err != nil {
		nc.Close()
		return nil, err
	}

	sub, err := js.PullSubscribe(subject, durable,
		nats.ManualAck(),
		nats.AckWait(5*time.Minute),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return &Queue{nc: nc, sub: sub}, nil
}

func (q *Queue) Close() {
	if q.nc != nil {
		_ = q.nc.Drain()
	}
}

func ensureStream(nc *nats.Conn, stream, subject string) (nats.JetStreamContext, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(stream); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stream info %s: %w", stream, err)
	}
	return js, nil
}

// Publisher pushes job messages into the stream without binding a
// consumer. Used by the backfill tool; the worker only consumes.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func ConnectPublisher(url, stream, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := ensureStream(nc, stream, subject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &Publisher{nc: nc, js: js, subject: subject}, nil
}

func (p *Publisher) PublishJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

func (q *Queue) fetch(opts ...nats.PullOpt) ([]*nats.Msg, error) {
	return q.sub.Fetch(1, opts...)
}

// natsDelivery adapts a JetStream message to the worker's delivery
// interface.
type natsDelivery struct {
	msg *nats.Msg
}

func (d natsDelivery) Data() []byte { return d.msg.Data }

func (d natsDelivery) Attempt() int {
	meta, err := d.msg.Metadata()
	if err != nil || meta.NumDelivered == 0 {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d natsDelivery) Ack() error  { return d.msg.Ack() }
func (d natsDelivery) Nak() error  { return d.msg.Nak() }
func (d natsDelivery) Term() error { return d.msg.Term() }
