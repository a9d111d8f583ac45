package extractor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/metrics"
)

func TestSelectTopFace(t *testing.T) {
	assert.Nil(t, SelectTopFace(nil))
	assert.Nil(t, SelectTopFace([]Face{{Score: 0.9}}), "faces without a descriptor are ignored")

	faces := []Face{
		{Score: 0.80, Box: BoundingBox{Width: 100, Height: 100}, Descriptor: descriptor.Descriptor{1}},
		{Score: 0.95, Box: BoundingBox{Width: 10, Height: 10}, Descriptor: descriptor.Descriptor{2}},
		{Score: 0.95, Box: BoundingBox{Width: 20, Height: 20}, Descriptor: descriptor.Descriptor{3}},
	}
	top := SelectTopFace(faces)
	require.NotNil(t, top)
	assert.Equal(t, descriptor.Descriptor{3}, top.Descriptor)

	top.Descriptor[0] = 42
	assert.Equal(t, float32(3), faces[2].Descriptor[0], "selection returns a copy")
}

func TestBoundingBoxRect(t *testing.T) {
	box := BoundingBox{X: 1.5, Y: 2, Width: 10, Height: 4.9}
	assert.Equal(t, image.Rect(1, 2, 11, 6), box.Rect())
	assert.Zero(t, BoundingBox{Width: -1, Height: 5}.Area())
}

type funcExtractor func(ctx context.Context, img image.Image) (*Face, error)

func (f funcExtractor) ExtractTopFace(ctx context.Context, img image.Image) (*Face, error) {
	return f(ctx, img)
}

func TestPoolReturnsResult(t *testing.T) {
	want := &Face{Score: 1, Descriptor: descriptor.Descriptor{0.5}}
	pool := NewPool(funcExtractor(func(context.Context, image.Image) (*Face, error) {
		return want, nil
	}), 2, time.Second, zap.NewNop())

	got, err := pool.ExtractTopFace(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestPoolPropagatesErrors(t *testing.T) {
	boom := errors.New("model crashed")
	pool := NewPool(funcExtractor(func(context.Context, image.Image) (*Face, error) {
		return nil, boom
	}), 1, time.Second, zap.NewNop())

	_, err := pool.ExtractTopFace(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestPoolTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := NewPool(funcExtractor(func(ctx context.Context, _ image.Image) (*Face, error) {
		<-release
		return nil, nil
	}), 1, 20*time.Millisecond, zap.NewNop())

	_, err := pool.ExtractTopFace(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPoolCountsTransportDeadlineAsTimeout(t *testing.T) {
	// The wrapped extractor reports the expired deadline with its own error,
	// the way a gRPC status error does.
	pool := NewPool(funcExtractor(func(ctx context.Context, _ image.Image) (*Face, error) {
		<-ctx.Done()
		return nil, errors.New("rpc error: code = DeadlineExceeded desc = context deadline exceeded")
	}), 1, 10*time.Millisecond, zap.NewNop())

	before := testutil.ToFloat64(metrics.ExtractionTimeoutsTotal)
	_, err := pool.ExtractTopFace(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ExtractionTimeoutsTotal))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var (
		active int32
		peak   int32
	)
	pool := NewPool(funcExtractor(func(context.Context, image.Image) (*Face, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &Face{Descriptor: descriptor.Descriptor{1}}, nil
	}), 2, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.ExtractTopFace(context.Background(), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
