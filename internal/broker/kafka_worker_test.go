package broker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/site-scrape-runner/config"
	"github.com/IliaW/site-scrape-runner/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	closed  bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestProducer_FlushesOnBatchSizeAndClose(t *testing.T) {
	events := make(chan *model.PageEvent, 5)
	fw := &fakeWriter{}
	wg := &sync.WaitGroup{}
	cfg := &config.ProducerConfig{BatchSize: 2, BatchTimeout: time.Hour, WriteTimeout: time.Second}

	for _, n := range []string{"p1", "p2", "p3"} {
		events <- &model.PageEvent{RunID: "r", Site: "demo", Nickname: n, Outcome: model.PageProcessed}
	}
	close(events)

	wg.Add(1)
	NewKafkaProducer(events, cfg, discard, wg).WithWriter(fw).Run()
	wg.Wait()

	require.Len(t, fw.batches, 2)
	assert.Len(t, fw.batches[0], 2)
	assert.Len(t, fw.batches[1], 1)
	assert.True(t, fw.closed)

	msg := fw.batches[0][0]
	assert.Equal(t, "demo/p1", string(msg.Key))
	var got model.PageEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "p1", got.Nickname)
	assert.Equal(t, model.PageProcessed, got.Outcome)
}
