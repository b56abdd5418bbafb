package scheduler_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/scheduler"
)

var _ = Describe("Scheduler", func() {
	It("rejects a malformed cron expression", func() {
		s := scheduler.New(scheduler.Jobs{}, slog.Default())
		err := s.Start(context.Background(), scheduler.Schedule{FetchInterval: "not a cron expr"})
		Expect(err).To(HaveOccurred())
	})

	It("merges concurrent TriggerFetch calls into a single in-flight run", func() {
		var running int32
		var maxConcurrent int32
		var wg sync.WaitGroup

		s := scheduler.New(scheduler.Jobs{
			Fetch: func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				if n > atomic.LoadInt32(&maxConcurrent) {
					atomic.StoreInt32(&maxConcurrent, n)
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&running, -1)
			},
		}, slog.Default())

		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.TriggerFetch(context.Background())
			}()
		}
		wg.Wait()

		Expect(atomic.LoadInt32(&maxConcurrent)).To(Equal(int32(1)))
	})
})
