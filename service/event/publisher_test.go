package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fieldops-insight-service/service/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *models.InsightEvent {
	score := 0.42
	return models.NewInsightEvent(&models.InsightRecord{
		ID:                  "insight-1",
		Domain:              models.DomainTickets,
		PersonaKey:          "ticket_analyst",
		EntityType:          "ticket",
		EntityID:            "17",
		Status:              models.InsightStatusSkipped,
		ContextQualityScore: &score,
	})
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherMessage(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newKafkaPublisherWithWriter(writer, DefaultKafkaTopic)

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "tickets:ticket:17", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "insight.skipped", string(msg.Headers[0].Value))

	var decoded models.InsightEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "insight-1", decoded.InsightID)
	assert.Equal(t, 0.42, *decoded.ContextQualityScore)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWriteError(t *testing.T) {
	publisher := newKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")}, DefaultKafkaTopic)
	assert.ErrorContains(t, publisher.Publish(context.Background(), sampleEvent()), "broker down")
}

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool                     { return t.completed }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completed }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTTClient struct {
	topics []string
	qos    []byte
	token  *fakeToken
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, _ bool, _ interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	return c.token
}

func TestMQTTPublisherTopic(t *testing.T) {
	client := &fakeMQTTClient{token: &fakeToken{completed: true}}
	publisher := newMQTTPublisherWithClient(client, "")

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, []string{"fieldops/insights/tickets/skipped"}, client.topics)
	assert.Equal(t, byte(1), client.qos[0])
	assert.NoError(t, publisher.Close())
}

func TestMQTTPublisherErrors(t *testing.T) {
	timeout := newMQTTPublisherWithClient(&fakeMQTTClient{token: &fakeToken{completed: false}}, "site")
	assert.ErrorContains(t, timeout.Publish(context.Background(), sampleEvent()), "超时")

	failed := newMQTTPublisherWithClient(&fakeMQTTClient{token: &fakeToken{completed: true, err: errors.New("not authorized")}}, "site")
	assert.ErrorContains(t, failed.Publish(context.Background(), sampleEvent()), "not authorized")
}

func TestMQTTConnectWait(t *testing.T) {
	assert.NoError(t, waitConnect(&fakeToken{completed: true}, "tcp://emqx:1883", time.Second))
	assert.ErrorContains(t, waitConnect(&fakeToken{completed: false}, "tcp://emqx:1883", time.Second), "超时")
	assert.ErrorContains(t, waitConnect(&fakeToken{completed: true, err: errors.New("bad credentials")}, "tcp://emqx:1883", time.Second), "bad credentials")
}

type countingPublisher struct {
	name  string
	calls int
	err   error
}

func (p *countingPublisher) Name() string { return p.name }
func (p *countingPublisher) Publish(context.Context, *models.InsightEvent) error {
	p.calls++
	return p.err
}
func (p *countingPublisher) Close() error { return nil }

func TestMultiPublisherContinuesAfterFailure(t *testing.T) {
	broken := &countingPublisher{name: "broken", err: errors.New("boom")}
	healthy := &countingPublisher{name: "healthy"}
	multi := NewMultiPublisher(broken, healthy)

	err := multi.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
	assert.Equal(t, 2, multi.Len())
	assert.NoError(t, multi.Close())

	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), sampleEvent()))
}
