package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/site-scrape-runner/config"
	"github.com/IliaW/site-scrape-runner/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageWriter is the part of *kafka.Writer used by the producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducerClient publishes page events until eventChan is closed.
type KafkaProducerClient struct {
	eventChan <-chan *model.PageEvent
	cfg       *config.ProducerConfig
	log       *slog.Logger
	wg        *sync.WaitGroup
	writer    MessageWriter
}

func NewKafkaProducer(eventChan <-chan *model.PageEvent, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		eventChan: eventChan,
		cfg:       cfg,
		log:       log,
		wg:        wg,
	}
}

// WithWriter replaces the kafka writer built from config.
func (p *KafkaProducerClient) WithWriter(w MessageWriter) *KafkaProducerClient {
	p.writer = w
	return p
}

func (p *KafkaProducerClient) newWriter() MessageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(p.cfg.Addr, ",")...),
		Topic:        p.cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAsks),
		Async:        p.cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
}

func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))

	w := p.writer
	if w == nil {
		w = p.newWriter()
	}
	defer func() {
		err := w.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchSize := max(p.cfg.BatchSize, 1)
	batchTimeout := p.cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	batchTicker := time.NewTicker(batchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, batchSize)
	writeMessage := func(batch []kafka.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := w.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			return
		}
		p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
	}

	for event := range p.eventChan {
		body, err := json.Marshal(event)
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.Any("event", event))
			continue
		}
		batch = append(batch, kafka.Message{
			Key:   []byte(event.Site + "/" + event.Nickname),
			Value: body,
		})
		select {
		case <-batchTicker.C:
			writeMessage(batch)
			batch = batch[:0]
		default:
			if len(batch) >= batchSize {
				writeMessage(batch)
				batch = batch[:0]
			}
		}
	}
	// Some messages may remain in the batch after eventChan is closed
	if len(batch) > 0 {
		p.log.Debug("messages in batch.", slog.Int("count", len(batch)))
		writeMessage(batch)
	}
	p.log.Info("stopping kafka writer.")
}
