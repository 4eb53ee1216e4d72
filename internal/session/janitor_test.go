package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

type fakeSweeper struct {
	sweeps atomic.Int64
	err    error
}

func (f *fakeSweeper) CleanExpiredSessions() (int64, error) {
	f.sweeps.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

var _ = ginkgo.Describe("Janitor", func() {
	var (
		sweeper *fakeSweeper
		cancel  context.CancelFunc
	)

	discardLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	start := func(initialDelay, interval time.Duration) {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		janitor := NewJanitor(sweeper, discardLogger, initialDelay, interval)
		go janitor.Start(ctx)
	}

	ginkgo.BeforeEach(func() {
		sweeper = &fakeSweeper{}
	})

	ginkgo.AfterEach(func() {
		if cancel != nil {
			cancel()
		}
	})

	ginkgo.It("should run the first sweep after the initial delay", func() {
		start(20*time.Millisecond, time.Hour)

		gomega.Consistently(func() int64 { return sweeper.sweeps.Load() }, 10*time.Millisecond, 2*time.Millisecond).
			Should(gomega.BeZero())
		gomega.Eventually(func() int64 { return sweeper.sweeps.Load() }, time.Second, 5*time.Millisecond).
			Should(gomega.Equal(int64(1)))
	})

	ginkgo.It("should keep sweeping on the interval", func() {
		start(time.Millisecond, 15*time.Millisecond)

		gomega.Eventually(func() int64 { return sweeper.sweeps.Load() }, time.Second, 5*time.Millisecond).
			Should(gomega.BeNumerically(">=", 3))
	})

	ginkgo.It("should keep the schedule when a sweep fails", func() {
		sweeper.err = errors.New("database unavailable")
		start(time.Millisecond, 15*time.Millisecond)

		gomega.Eventually(func() int64 { return sweeper.sweeps.Load() }, time.Second, 5*time.Millisecond).
			Should(gomega.BeNumerically(">=", 3))
	})

	ginkgo.It("should stop sweeping once the context is cancelled", func() {
		start(time.Millisecond, 15*time.Millisecond)

		gomega.Eventually(func() int64 { return sweeper.sweeps.Load() }, time.Second, 5*time.Millisecond).
			Should(gomega.BeNumerically(">=", 1))

		cancel()
		time.Sleep(30 * time.Millisecond)
		after := sweeper.sweeps.Load()

		gomega.Consistently(func() int64 { return sweeper.sweeps.Load() }, 50*time.Millisecond, 10*time.Millisecond).
			Should(gomega.Equal(after))
	})

	ginkgo.It("should not start sweeping when cancelled during the initial delay", func() {
		start(time.Hour, time.Hour)
		cancel()

		gomega.Consistently(func() int64 { return sweeper.sweeps.Load() }, 30*time.Millisecond, 5*time.Millisecond).
			Should(gomega.BeZero())
	})
})
