package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/flood-forecast/internal/database"
	"github.com/smukkama/flood-forecast/internal/forecast"
	"github.com/smukkama/flood-forecast/internal/protocol"
)

// Store persists decoded refresh runs
type Store interface {
	InsertReadings(ctx context.Context, run *database.ReadingRun, readings []database.CleanedReading) (bool, error)
	InsertForecastRun(ctx context.Context, run *database.ForecastRun, results []database.ForecastResult) (bool, error)
}

// MessageSource is the consuming side of the queue
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

const (
	consumeRetryDelay = time.Second
	writeRetryDelay   = 500 * time.Millisecond
	maxWriteRetry     = 10 * time.Second
	writeAttempts     = 5
)

// partitionKey identifies the offset sequence a commit acknowledges
type partitionKey struct {
	topic     string
	partition int
}

// BatchWriter consumes refresh runs from Kafka and batch-writes them to the
// database
type BatchWriter struct {
	source        MessageSource
	store         Store
	topics        Topics
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	retryDelay    time.Duration
	attempts      int
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(source MessageSource, store Store, topics Topics, batchSize int, flushInterval time.Duration, logger *slog.Logger) *BatchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchWriter{
		source:        source,
		store:         store,
		topics:        topics,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		retryDelay:    writeRetryDelay,
		attempts:      writeAttempts,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to database
func (bw *BatchWriter) Start(ctx context.Context) error {
	bw.wg.Add(1)
	go bw.run(ctx)
	return nil
}

// Stop flushes the pending batch and waits for the writer to exit
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgCh := make(chan kafka.Message, bw.batchSize)
	go bw.consume(consumeCtx, msgCh)

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.stopCh:
			cancel()
			if held := bw.flush(ctx, batch); len(held) > 0 {
				bw.logger.Warn("stopping with unwritten messages", "messages", len(held))
			}
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.logger.Debug("flush interval reached", "messages", len(batch))
				batch = bw.flush(ctx, batch)
			}

		case msg := <-msgCh:
			bw.logger.Debug("consumed message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset)
			batch = append(batch, msg)

			if len(batch) >= bw.batchSize {
				batch = bw.flush(ctx, batch)
			}
		}
	}
}

func (bw *BatchWriter) consume(ctx context.Context, out chan<- kafka.Message) {
	for {
		msg, err := bw.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			bw.logger.Error("consumer error", "error", err)
			select {
			case <-time.After(consumeRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// flush writes and commits the batch in order. A message whose write keeps
// failing blocks its partition: it and every later message of that partition
// stay uncommitted and are returned to be retried on the next flush.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) []kafka.Message {
	if len(batch) == 0 {
		return nil
	}

	var held []kafka.Message
	blocked := make(map[partitionKey]bool)
	successCount := 0
	for _, msg := range batch {
		key := partitionKey{topic: msg.Topic, partition: msg.Partition}
		if blocked[key] {
			held = append(held, msg)
			continue
		}

		if err := bw.processWithRetry(ctx, msg); err != nil {
			bw.logger.Error("failed to process message, holding partition",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err)
			blocked[key] = true
			held = append(held, msg)
			continue
		}
		successCount++

		if err := bw.source.Commit(ctx, msg); err != nil {
			bw.logger.Error("failed to commit offset", "error", err)
		}
	}

	bw.logger.Info("flushed batch", "written", successCount, "batch", len(batch), "held", len(held))
	return held
}

// processWithRetry retries a failed write with exponential backoff until it
// succeeds, the attempts run out, or the writer is stopping.
func (bw *BatchWriter) processWithRetry(ctx context.Context, msg kafka.Message) error {
	delay := bw.retryDelay
	for attempt := 1; ; attempt++ {
		err := bw.processMessage(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt >= bw.attempts {
			return err
		}

		bw.logger.Warn("write failed, retrying",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-bw.stopCh:
			return err
		case <-ctx.Done():
			return err
		}

		delay *= 2
		if delay > maxWriteRetry {
			delay = maxWriteRetry
		}
	}
}

func (bw *BatchWriter) processMessage(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case bw.topics.Readings:
		m, err := protocol.DecodeReadingsMessage(msg.Value)
		if err != nil {
			bw.logger.Warn("dropping undecodable readings message", "offset", msg.Offset, "error", err)
			return nil
		}
		run, rows := ReadingRows(m)
		inserted, err := bw.store.InsertReadings(ctx, run, rows)
		if err != nil {
			return fmt.Errorf("failed to insert readings: %w", err)
		}
		if !inserted {
			bw.logger.Debug("readings already stored", "run_id", m.RunID)
		}
		return nil

	case bw.topics.Forecasts:
		m, err := protocol.DecodeForecastMessage(msg.Value)
		if err != nil {
			bw.logger.Warn("dropping undecodable forecast message", "offset", msg.Offset, "error", err)
			return nil
		}
		run, rows := ForecastRows(m)
		inserted, err := bw.store.InsertForecastRun(ctx, run, rows)
		if err != nil {
			return fmt.Errorf("failed to insert forecast run: %w", err)
		}
		if !inserted {
			bw.logger.Debug("forecast run already stored", "run_id", m.RunID)
		}
		return nil

	default:
		bw.logger.Warn("ignoring message from unknown topic", "topic", msg.Topic)
		return nil
	}
}

// ReadingRows converts a readings message to database rows.
func ReadingRows(m *protocol.ReadingsMessage) (*database.ReadingRun, []database.CleanedReading) {
	run := &database.ReadingRun{
		RunID:       m.RunID,
		FetchedAt:   m.FetchedAt,
		Excluded:    m.Excluded,
		Outliers:    m.Outliers,
		Regressions: m.Regressions,
	}
	rows := make([]database.CleanedReading, len(m.Readings))
	for i, r := range m.Readings {
		rows[i] = database.CleanedReading{EntryID: r.EntryID, Timestamp: r.Timestamp, Value: r.Value}
	}
	return run, rows
}

// ForecastRows converts a forecast message to database rows.
func ForecastRows(m *protocol.ForecastMessage) (*database.ForecastRun, []database.ForecastResult) {
	run := &database.ForecastRun{RunID: m.RunID, GeneratedAt: m.GeneratedAt}
	rows := make([]database.ForecastResult, len(m.Results))
	for i, r := range m.Results {
		rows[i] = database.ForecastResult{
			ResolutionMinutes: r.ResolutionMinutes,
			Alpha:             r.Alpha,
			RMSE:              r.RMSE,
			MAPE:              r.MAPE,
			NextValue:         r.NextValue,
			NextTimestamp:     r.NextTimestamp,
			Overridden:        r.Overridden,
			TestSize:          r.TestSize,
			WarningLevel:      r.Warning.Level,
		}
	}
	return run, rows
}

// ForecastFromRows rebuilds a forecast message from a stored run. Clock
// strings, confidence and warnings are derived again, in loc.
func ForecastFromRows(run *database.ForecastRun, rows []database.ForecastResult, loc *time.Location) *protocol.ForecastMessage {
	msg := &protocol.ForecastMessage{RunID: run.RunID, GeneratedAt: run.GeneratedAt}
	for _, r := range rows {
		msg.Results = append(msg.Results, protocol.NewResolutionResult(forecast.Result{
			Resolution:    time.Duration(r.ResolutionMinutes) * time.Minute,
			Alpha:         r.Alpha,
			RMSE:          orNaN(r.RMSE),
			MAPE:          orNaN(r.MAPE),
			NextValue:     r.NextValue,
			NextTimestamp: r.NextTimestamp,
			TestSize:      r.TestSize,
			Overridden:    r.Overridden,
		}, loc))
	}
	return msg
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
