package offload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
)

var (
	// ErrNotTrainable is returned when the serving scorer cannot be refit.
	ErrNotTrainable = errors.New("scorer is not trainable")
	// ErrInsufficientExperience is returned when fewer than one batch is stored.
	ErrInsufficientExperience = errors.New("not enough experience to retrain")
	// ErrTrainerRunning is returned by StartTrainer when one is already active.
	ErrTrainerRunning = errors.New("trainer already running")
)

type trainState struct {
	// mu serialises refits and guards rng, cancel and done.
	mu     sync.Mutex
	rng    *rand.Rand
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *trainState) init(seed int64) {
	s.rng = rand.New(rand.NewSource(seed + 1))
}

// Retrain refits a clone of the serving scorer on a frozen copy of the
// experience buffer and swaps it in atomically. Decisions keep using the old
// scorer until the swap.
func (e *Engine) Retrain(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "offload.retrain")
	defer span.End()

	// The serving scorer is read under the lock so concurrent refits build on
	// each other instead of racing from the same base.
	e.trainer.mu.Lock()
	defer e.trainer.mu.Unlock()

	current, ok := e.Scorer().(Trainable)
	if !ok {
		return ErrNotTrainable
	}
	data := e.buffer.Snapshot()
	if len(data) < e.cfg.BatchSize {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientExperience, len(data), e.cfg.BatchSize)
	}
	span.SetAttributes(
		attribute.Int("offload.experiences", len(data)),
		attribute.Int("offload.epochs", e.cfg.Epochs),
	)

	next := current.Clone()
	var loss float64
	for epoch := 0; epoch < e.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrain cancelled")
			return err
		}
		e.trainer.rng.Shuffle(len(data), func(i, j int) { data[i], data[j] = data[j], data[i] })
		var sum float64
		batches := 0
		for start := 0; start < len(data); start += e.cfg.BatchSize {
			end := min(start+e.cfg.BatchSize, len(data))
			sum += next.Fit(data[start:end], e.cfg.LearningRate)
			batches++
		}
		loss = sum / float64(batches)
	}

	e.policy.Store(&scorerBox{next})
	e.metrics.RecordRetrain()
	span.SetAttributes(attribute.Float64("offload.loss", loss))
	e.log.Info(ctx, "policy retrained",
		logging.Int("experiences", len(data)),
		logging.Float("loss", loss))
	return nil
}

// StartTrainer runs refits on a background goroutine whenever enough new
// experience has been recorded. It returns ErrTrainerRunning if a trainer is
// already active.
func (e *Engine) StartTrainer(ctx context.Context) error {
	e.trainer.mu.Lock()
	if e.trainer.done != nil {
		e.trainer.mu.Unlock()
		return ErrTrainerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.trainer.cancel, e.trainer.done = cancel, done
	e.trainer.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.retrainCh:
				err := e.Retrain(ctx)
				switch {
				case err == nil, errors.Is(err, ErrInsufficientExperience), errors.Is(err, context.Canceled):
				default:
					e.log.Warn(ctx, "policy retrain failed", logging.Err(err))
				}
			}
		}
	}()
	return nil
}

// StopTrainer cancels the background trainer and waits for it to exit.
func (e *Engine) StopTrainer() {
	e.trainer.mu.Lock()
	cancel, done := e.trainer.cancel, e.trainer.done
	e.trainer.cancel, e.trainer.done = nil, nil
	e.trainer.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
