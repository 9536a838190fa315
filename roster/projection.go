package roster

import (
	"context"
	"errors"
	"sync"
	"time"

	"visitor-kiosk/models"
	"visitor-kiosk/realtime"

	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Subscribed
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	}
	return "disconnected"
}

var ErrClosed = errors.New("roster: projection closed")

// Snapshot is one full re-fetch of the roster.
type Snapshot struct {
	Visitors []models.Visitor `json:"visitors"`
	Summary  Summary          `json:"summary"`
	Filter   Filter           `json:"filter"`
	At       time.Time        `json:"at"`
}

// Sink receives every snapshot the projection builds.
type Sink interface {
	Snapshot(ctx context.Context, snap Snapshot) error
}

// Printer is triggered once per newly inserted id.
type Printer interface {
	Print(ctx context.Context, id int64) error
}

type Option func(*Projection)

func WithPrinter(p Printer, printed *PrintedSet) Option {
	return func(pr *Projection) {
		pr.printer = p
		pr.printed = printed
	}
}

func WithLocation(loc *time.Location) Option {
	return func(pr *Projection) { pr.loc = loc }
}

func WithPageSize(n int) Option {
	return func(pr *Projection) { pr.pageSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(pr *Projection) { pr.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(pr *Projection) { pr.logger = l }
}

// Projection keeps one dashboard session in sync with the store. Every
// change notification is answered by a full re-query; events queued while
// a refresh runs are coalesced into the next one.
type Projection struct {
	q        Querier
	feed     realtime.Feed
	sink     Sink
	printer  Printer
	printed  *PrintedSet
	loc      *time.Location
	pageSize int
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	filter Filter
	sub    *realtime.Subscription

	filterCh  chan Filter
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func New(q Querier, feed realtime.Feed, sink Sink, opts ...Option) *Projection {
	p := &Projection{
		q:        q,
		feed:     feed,
		sink:     sink,
		loc:      time.UTC,
		pageSize: DefaultPageSize,
		now:      time.Now,
		logger:   zap.NewNop(),
		filter:   Filter{Preset: PresetToday},
		filterCh: make(chan Filter),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.printer != nil && p.printed == nil {
		p.printed = NewPrintedSet()
	}
	return p
}

func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Projection) Filter() Filter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// Start subscribes, pushes the first snapshot and keeps the projection
// running until ctx ends or Close is called.
func (p *Projection) Start(ctx context.Context) error {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return ErrClosed
	default:
	}
	if p.state != Disconnected {
		p.mu.Unlock()
		return ErrClosed
	}
	sub, err := p.feed.Subscribe(realtime.TableVisitors)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.sub = sub
	p.state = Subscribed
	p.mu.Unlock()

	p.refresh(ctx)
	go p.run(ctx, sub)
	return nil
}

// SetFilter switches the active query and re-fetches.
func (p *Projection) SetFilter(ctx context.Context, f Filter) error {
	if f.Preset == "" {
		f.Preset = PresetToday
	}
	if _, err := ParsePreset(string(f.Preset)); err != nil {
		return err
	}
	if p.State() == Disconnected {
		p.mu.Lock()
		p.filter = f
		p.mu.Unlock()
		return nil
	}
	select {
	case p.filterCh <- f:
		return nil
	case <-p.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes and waits for the loop to exit. Safe to call twice.
func (p *Projection) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		started := p.sub != nil
		p.mu.Unlock()
		if started {
			<-p.stopped
		} else {
			close(p.stopped)
		}
		p.mu.Lock()
		p.state = Unsubscribed
		p.mu.Unlock()
	})
}

func (p *Projection) run(ctx context.Context, sub *realtime.Subscription) {
	defer func() {
		p.feed.Unsubscribe(sub)
		p.mu.Lock()
		p.state = Unsubscribed
		p.mu.Unlock()
		close(p.stopped)
	}()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case f := <-p.filterCh:
			p.mu.Lock()
			p.filter = f
			p.mu.Unlock()
			p.refresh(ctx)
		case ev, ok := <-events:
			if !ok {
				p.logger.Info("roster feed closed")
				return
			}
			p.handle(ctx, ev)
		drain:
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						break drain
					}
					p.handle(ctx, ev)
				default:
					break drain
				}
			}
			p.refresh(ctx)
		}
	}
}

// handle only acts on inserts; every event ends in a refresh.
func (p *Projection) handle(ctx context.Context, ev realtime.ChangeEvent) {
	if ev.Type != realtime.EventInsert || p.printer == nil {
		return
	}
	for _, id := range ev.IDs {
		if !p.printed.MarkPrinted(id) {
			continue
		}
		if err := p.printer.Print(ctx, id); err != nil {
			p.logger.Warn("auto print failed", zap.Int64("id", id), zap.Error(err))
		}
	}
}

func (p *Projection) refresh(ctx context.Context) {
	f := p.Filter()
	now := p.now()

	rows, err := Load(ctx, p.q, f, now, p.loc, p.pageSize)
	if err != nil {
		p.logger.Warn("roster query failed", zap.Error(err))
		return
	}
	sum, err := Summarize(ctx, p.q, f, now, p.loc)
	if err != nil {
		p.logger.Warn("roster summary failed", zap.Error(err))
		return
	}
	snap := Snapshot{Visitors: rows, Summary: sum, Filter: f, At: now}
	if err := p.sink.Snapshot(ctx, snap); err != nil {
		p.logger.Warn("roster push failed", zap.Error(err))
	}
}
