package extractor

import (
	"context"
	"errors"
	"image"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/example/face-verify/internal/metrics"
)

// ErrTimeout is returned when an extraction does not finish in time.
var ErrTimeout = errors.New("face extraction timed out")

// Pool bounds the number of concurrent extractions and the time a caller
// waits for one. It implements Extractor.
type Pool struct {
	next    Extractor
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
}

type extraction struct {
	face *Face
	err  error
}

// NewPool wraps next. workers <= 0 means GOMAXPROCS; timeout <= 0 disables the deadline.
func NewPool(next Extractor, workers int, timeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		next:    next,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		logger:  logger.Named("extractor_pool"),
	}
}

// ExtractTopFace waits for a free worker, runs the wrapped extractor on it and
// waits for the result, the deadline or ctx cancellation.
func (p *Pool) ExtractTopFace(ctx context.Context, img image.Image) (*Face, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, p.waitErr(ctx, err)
	}
	metrics.ExtractionsInFlight.Inc()

	// Buffered so an abandoned worker can finish without blocking.
	done := make(chan extraction, 1)
	go func() {
		defer p.sem.Release(1)
		defer metrics.ExtractionsInFlight.Dec()
		face, err := p.next.ExtractTopFace(ctx, img)
		done <- extraction{face: face, err: err}
	}()

	select {
	case res := <-done:
		metrics.ExtractionDurationSeconds.Observe(time.Since(start).Seconds())
		if res.err != nil {
			// Transports such as gRPC report an expired deadline with their own error type.
			if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				metrics.ExtractionTimeoutsTotal.Inc()
				return nil, ErrTimeout
			}
		}
		return res.face, res.err
	case <-ctx.Done():
		p.logger.Warn("abandoning face extraction", zap.Duration("waited", time.Since(start)), zap.Error(ctx.Err()))
		return nil, p.waitErr(ctx, ctx.Err())
	}
}

func (p *Pool) waitErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.ExtractionTimeoutsTotal.Inc()
		return ErrTimeout
	}
	return err
}
