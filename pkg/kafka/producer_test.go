package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()
	_, err := NewProducer()
	assert.EqualError(t, err, "brokers are required")
}

func TestProducer_Publish(t *testing.T) {
	t.Parallel()
	w := &recordingWriter{}
	p, err := NewProducer(WithWriter(w))
	require.NoError(t, err)

	payload := map[string]int{"train": 10}
	require.NoError(t, p.Publish(context.Background(), "topic", []byte("short_5m"), payload, map[string]string{"event": "built"}))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "topic", m.Topic)
	assert.Equal(t, []byte("short_5m"), m.Key)
	assert.JSONEq(t, `{"train":10}`, string(m.Value))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "event", m.Headers[0].Key)
	assert.Equal(t, []byte("built"), m.Headers[0].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	p, err := NewProducer(WithWriter(&recordingWriter{err: boom}))
	require.NoError(t, err)

	err = p.Publish(context.Background(), "topic", nil, "raw", nil)
	assert.ErrorIs(t, err, boom)
}

func TestParseCompression(t *testing.T) {
	t.Parallel()
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
}
