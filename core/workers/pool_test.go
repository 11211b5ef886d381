// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package workers_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devblok/cubes/core/workers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, size int) *workers.Pool {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	p, err := workers.New(size, logger)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewRejectsEmptyPool(t *testing.T) {
	_, err := workers.New(0, nil)
	assert.Error(t, err)
}

func TestFanOutFanIn(t *testing.T) {
	p := newPool(t, 3)
	assert.Equal(t, 3, p.Size())

	var done [3]int32
	works := make([]*workers.Work, 3)
	for i := range works {
		i := i
		works[i] = workers.NewWork(func() error {
			time.Sleep(time.Duration(3-i) * 5 * time.Millisecond)
			atomic.StoreInt32(&done[i], 1)
			return nil
		})
	}

	for frame := 0; frame < 5; frame++ {
		for i := range done {
			atomic.StoreInt32(&done[i], 0)
		}
		for _, w := range works {
			require.NoError(t, p.Submit(w))
		}
		for _, w := range works {
			require.NoError(t, p.Join(w))
		}
		for i := range done {
			assert.Equal(t, int32(1), atomic.LoadInt32(&done[i]), "work %d not finished after join", i)
		}
	}
}

func TestWorksRunInParallel(t *testing.T) {
	p := newPool(t, 3)

	works := make([]*workers.Work, 3)
	for i := range works {
		works[i] = workers.NewWork(func() error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	for _, w := range works {
		require.NoError(t, p.Submit(w))
	}
	for _, w := range works {
		require.NoError(t, p.Join(w))
	}
	assert.Less(t, int64(time.Since(start)), int64(250*time.Millisecond))
}

func TestJoinReturnsWorkError(t *testing.T) {
	p := newPool(t, 1)
	boom := errors.New("boom")

	w := workers.NewWork(func() error { return boom })
	require.NoError(t, p.Submit(w))
	assert.Equal(t, boom, p.Join(w))
}

func TestJoinNeverSubmitted(t *testing.T) {
	p := newPool(t, 1)
	w := workers.NewWork(func() error { return errors.New("never") })
	assert.NoError(t, p.Join(w))
	assert.True(t, w.Signal().Fired())
}

func TestSubmitOutstandingWorkIsBusy(t *testing.T) {
	p := newPool(t, 1)
	release := make(chan struct{})

	w := workers.NewWork(func() error {
		<-release
		return nil
	})
	require.NoError(t, p.Submit(w))
	assert.Equal(t, workers.ErrBusy, p.Submit(w))

	close(release)
	require.NoError(t, p.Join(w))
	require.NoError(t, p.Submit(w))
	require.NoError(t, p.Join(w))
}

func TestPanicIsReported(t *testing.T) {
	p := newPool(t, 2)

	w := workers.NewWork(func() error { panic("kaboom") })
	require.NoError(t, p.Submit(w))
	err := p.Join(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// the goroutine survives the panic
	ok := workers.NewWork(func() error { return nil })
	require.NoError(t, p.Submit(ok))
	assert.NoError(t, p.Join(ok))
}

func TestClose(t *testing.T) {
	p, err := workers.New(2, nil)
	require.NoError(t, err)

	var ran int32
	w := workers.NewWork(func() error {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, p.Submit(w))

	p.Close()
	p.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.Equal(t, workers.ErrClosed, p.Submit(w))
}

func TestSignalTryWait(t *testing.T) {
	p := newPool(t, 1)
	release := make(chan struct{})
	w := workers.NewWork(func() error {
		<-release
		return nil
	})
	require.NoError(t, p.Submit(w))

	sig := w.Signal()
	assert.False(t, sig.Fired())
	assert.False(t, sig.TryWait(context.Background(), 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sig.Wait(ctx))

	close(release)
	assert.True(t, sig.Wait(context.Background()))
	assert.True(t, sig.Fired())
}

func BenchmarkFanOutFanIn(b *testing.B) {
	p, err := workers.New(3, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer p.Close()

	works := []*workers.Work{
		workers.NewWork(func() error { return nil }),
		workers.NewWork(func() error { return nil }),
		workers.NewWork(func() error { return nil }),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, w := range works {
			_ = p.Submit(w)
		}
		for _, w := range works {
			_ = p.Join(w)
		}
	}
}
