package prescan_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nodalmesh/sentinel/internal/model"
	"github.com/nodalmesh/sentinel/internal/prescan"
)

type fakeDialer struct {
	fail map[string]bool
}

func (f *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if f.fail[address] {
		return nil, errors.New("connection refused")
	}
	c1, c2 := net.Pipe()
	go c2.Close()
	return c1, nil
}

var _ = Describe("Scanner", func() {
	It("passes reachable candidates and drops unreachable ones", func() {
		d := &fakeDialer{fail: map[string]bool{"2.2.2.2:80": true}}
		s := prescan.NewWithDialer(prescan.Config{Timeout: time.Second, Concurrency: 10}, d)

		candidates := []model.Candidate{
			{Key: model.Key{Host: "1.1.1.1", Port: 80, Protocol: model.HTTP}},
			{Key: model.Key{Host: "2.2.2.2", Port: 80, Protocol: model.HTTP}},
		}

		out := s.Scan(context.Background(), candidates)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Key.Host).To(Equal("1.1.1.1"))
	})

	It("never blocks past context cancellation", func() {
		d := &fakeDialer{}
		s := prescan.NewWithDialer(prescan.Config{Timeout: time.Second, Concurrency: 1}, d)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		candidates := []model.Candidate{
			{Key: model.Key{Host: "1.1.1.1", Port: 80, Protocol: model.HTTP}},
		}
		out := s.Scan(ctx, candidates)
		Expect(out).To(BeEmpty())
	})
})
