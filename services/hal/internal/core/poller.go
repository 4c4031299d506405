package core

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/marklacroix/dht/services/hal/internal/util"
)

// PollReq asks the service loop to run a control verb against a
// capability. Delivery is best effort over a buffered channel.
type PollReq struct {
	Domain string
	Kind   string
	Name   string
	Verb   string
}

type schedule struct {
	req    PollReq
	every  time.Duration
	jitter time.Duration
	due    time.Time
	index  int
}

type schedHeap []*schedule

func (h schedHeap) Len() int           { return len(h) }
func (h schedHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h schedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *schedHeap) Push(x any) {
	s := x.(*schedule)
	s.index = len(*h)
	*h = append(*h, s)
}
func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	s.index = -1
	*h = old[:n-1]
	return s
}

// Poller owns the periodic read schedules. Every fire re-arms with a
// uniform extra delay in [0..jitter] on top of the interval, so
// co-located sensors drift apart instead of hitting their lines in
// lockstep.
type Poller struct {
	mu    sync.Mutex
	wake  chan struct{}
	sched map[PollReq]*schedule
	h     schedHeap
	rng   *rand.Rand
	out   chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		wake:  make(chan struct{}, 1),
		sched: make(map[PollReq]*schedule),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Upsert installs or retunes a schedule. The first fire lands one
// jittered interval from now, never immediately.
func (p *Poller) Upsert(domain, kind, name, verb string, every, jitter time.Duration) {
	if every <= 0 || verb == "" {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	key := PollReq{Domain: domain, Kind: kind, Name: name, Verb: verb}

	p.mu.Lock()
	due := time.Now().Add(p.jittered(every, jitter))
	if s := p.sched[key]; s != nil {
		s.every = every
		s.jitter = jitter
		s.due = due
		heap.Fix(&p.h, s.index)
	} else {
		s = &schedule{req: key, every: every, jitter: jitter, due: due, index: -1}
		p.sched[key] = s
		heap.Push(&p.h, s)
	}
	p.mu.Unlock()
	p.kick()
}

func (p *Poller) Stop(domain, kind, name, verb string) {
	key := PollReq{Domain: domain, Kind: kind, Name: name, Verb: verb}
	p.mu.Lock()
	if s := p.sched[key]; s != nil {
		heap.Remove(&p.h, s.index)
		delete(p.sched, key)
	}
	p.mu.Unlock()
	p.kick()
}

// BumpAfter re-anchors a schedule to one interval past at. A reading
// obtained on demand counts as a cycle, so the periodic one moves out
// of its way.
func (p *Poller) BumpAfter(domain, kind, name, verb string, at time.Time) {
	key := PollReq{Domain: domain, Kind: kind, Name: name, Verb: verb}
	now := time.Now()
	p.mu.Lock()
	if s := p.sched[key]; s != nil {
		due := at.Add(s.every)
		if due.Before(now) {
			due = now
		}
		s.due = due
		heap.Fix(&p.h, s.index)
	}
	p.mu.Unlock()
	p.kick()
}

// Run fires due schedules until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait, any := p.nextWait()
		if !any {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}
		if wait <= 0 {
			p.fireOne()
			continue
		}

		util.ResetTimer(timer, wait)
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-timer.C:
		}
	}
}

// fireOne pops the due head, re-arms it, then hands the request over.
// A full output queue drops this cycle; the schedule has already
// re-armed for the next one.
func (p *Poller) fireOne() {
	var req PollReq
	fired := false

	p.mu.Lock()
	if len(p.h) > 0 && !p.h[0].due.After(time.Now()) {
		s := heap.Pop(&p.h).(*schedule)
		s.due = time.Now().Add(p.jittered(s.every, s.jitter))
		heap.Push(&p.h, s)
		req = s.req
		fired = true
	}
	p.mu.Unlock()

	if !fired {
		return
	}
	select {
	case p.out <- req:
	default:
	}
}

func (p *Poller) nextWait() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.h) == 0 {
		return 0, false
	}
	return time.Until(p.h[0].due), true
}

func (p *Poller) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jittered(every, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return every
	}
	return every + time.Duration(p.rng.Int63n(int64(jitter)+1))
}
