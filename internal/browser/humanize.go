package browser

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Span is an inclusive range a random delay is drawn from.
type Span struct {
	Min time.Duration
	Max time.Duration
}

// Timings are the pacing and wait budgets of the site flows.
type Timings struct {
	CredentialKeystroke Span
	QueryKeystroke      Span
	FieldPause          Span
	ClickPause          Span
	BetweenDownloads    Span
	AfterNavigate       Span
	AfterSubmit         Span

	PollInterval   time.Duration
	ElementTimeout time.Duration
	AuthTimeout    time.Duration
	// ResultsTimeout bounds the wait for the export button after submitting.
	ResultsTimeout time.Duration
}

// DefaultTimings returns the pacing used against the live site.
func DefaultTimings() Timings {
	return Timings{
		CredentialKeystroke: Span{50 * time.Millisecond, 100 * time.Millisecond},
		QueryKeystroke:      Span{30 * time.Millisecond, 80 * time.Millisecond},
		FieldPause:          Span{200 * time.Millisecond, 500 * time.Millisecond},
		ClickPause:          Span{500 * time.Millisecond, 1500 * time.Millisecond},
		BetweenDownloads:    Span{2 * time.Second, 4 * time.Second},
		AfterNavigate:       Span{2 * time.Second, 4 * time.Second},
		AfterSubmit:         Span{3 * time.Second, 5 * time.Second},
		PollInterval:        time.Second,
		ElementTimeout:      15 * time.Second,
		AuthTimeout:         30 * time.Second,
		ResultsTimeout:      60 * time.Second,
	}
}

// FastTimings keeps every pause at zero and shortens the waits. Used by tests.
func FastTimings() Timings {
	return Timings{
		PollInterval:   time.Millisecond,
		ElementTimeout: 50 * time.Millisecond,
		AuthTimeout:    50 * time.Millisecond,
		ResultsTimeout: 50 * time.Millisecond,
	}
}

// Pacer produces randomized human-like pauses.
type Pacer struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	sleep func(context.Context, time.Duration) error
}

// NewPacer returns a Pacer backed by a time-seeded source.
func NewPacer() *Pacer {
	now := uint64(time.Now().UnixNano())
	return &Pacer{rnd: rand.New(rand.NewPCG(now, now>>1)), sleep: sleepCtx}
}

// NoDelay returns a Pacer that never sleeps.
func NoDelay() *Pacer {
	return &Pacer{
		rnd:   rand.New(rand.NewPCG(1, 2)),
		sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

// Draw returns a duration within span.
func (p *Pacer) Draw(span Span) time.Duration {
	if span.Max <= span.Min {
		return span.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return span.Min + time.Duration(p.rnd.Int64N(int64(span.Max-span.Min)+1))
}

// Pause sleeps for a random duration within span, or until ctx ends.
func (p *Pacer) Pause(ctx context.Context, span Span) error {
	return p.sleep(ctx, p.Draw(span))
}

// Wait sleeps for exactly d, or until ctx ends.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Type sends text one rune at a time, pausing within span between keystrokes.
func (p *Pacer) Type(ctx context.Context, d Driver, text string, span Span) error {
	for _, r := range text {
		if err := d.InsertText(ctx, string(r)); err != nil {
			return err
		}
		if err := p.Pause(ctx, span); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
