// Package resilient wraps dispatch/bus with a durable fallback: when the
// in-process bus can't take a publish, messages are parked in the same
// jido.StorageAdapter that Persist uses for checkpoints and thread
// journals, then replayed once the bus is healthy again (§11).
//
// The fallback queue is not a bespoke table: it is one more thread, kept
// under a well-known Key, durable through whatever StorageAdapter the
// deployment already runs (storage/memory or storage/postgres). Parking a
// message is an AppendThread call; recovery reads the thread forward from
// the last replayed revision. Because StorageAdapter's thread log is
// append-only (§4.7 — entries are never deleted, only appended and
// optimistically flushed), replay advances a local watermark instead of
// deleting rows, and a restart that loses that watermark simply replays
// already-delivered entries again — an acceptable cost for a best-effort,
// at-least-once fan-out, not a correctness violation.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	jido "github.com/agentjido/jido-sub001"
	"github.com/agentjido/jido-sub001/dispatch/bus"
)

// pendingThreadID names the single journal thread a Publisher uses to
// park undeliverable bus messages under its storage key.
const pendingThreadID = "dispatch-pending"

// entryKind tags parked entries so a shared StorageAdapter can host other
// threads (e.g. agent threads) alongside the pending queue without
// ambiguity.
const entryKind = "bus.pending"

// Publisher publishes through a bus.Bus when it's healthy, and falls back
// to a jido.StorageAdapter thread when it isn't, recovering in the
// background.
type Publisher struct {
	bus     *bus.Bus
	storage jido.StorageAdapter
	key     jido.Key

	healthy atomic.Bool

	mu          sync.Mutex // serializes AppendThread calls (single-writer journal)
	storedRev   int
	replayedRev int

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New builds a Publisher over an existing bus.Bus, falling back to
// storage under key when the bus can't take a publish. key typically
// names a fixed, deployment-wide slot (e.g. {AgentModule: "system",
// Manager: "dispatch", Raw: "pending"}) rather than any individual
// agent's key.
func New(b *bus.Bus, storage jido.StorageAdapter, key jido.Key, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{bus: b, storage: storage, key: key, stopCh: make(chan struct{}), logger: logger}
	p.healthy.Store(true)
	return p
}

// Start launches the background recovery loop, which periodically retries
// flushing anything sitting in the fallback thread. It also primes the
// publisher's revision watermarks from whatever the storage already holds
// (a prior process may have parked entries before crashing). Start
// returns immediately; the loop runs until ctx is done or Stop is called.
func (p *Publisher) Start(ctx context.Context) {
	p.primeWatermarks(ctx)
	p.wg.Add(1)
	go p.recoveryLoop(ctx)
}

func (p *Publisher) primeWatermarks(ctx context.Context) {
	th, err := p.storage.GetThread(ctx, p.key, pendingThreadID)
	if err != nil {
		return // ErrNotFound (nothing parked yet) or a transient lookup failure
	}
	p.mu.Lock()
	p.storedRev = th.Rev
	p.mu.Unlock()
}

// Stop halts the recovery loop and waits for it to exit.
func (p *Publisher) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Publish delivers msg via the bus when healthy, otherwise parks it in
// the fallback thread for later replay.
func (p *Publisher) Publish(msg bus.Message) {
	if p.healthy.Load() {
		if p.tryPublish(msg) {
			return
		}
		p.healthy.Store(false)
		p.logger.Warn("bus publish failed, switching to storage fallback")
	}
	p.saveToFallback(msg)
}

// SetHealthy overrides the bus health flag, for tests and operator
// intervention.
func (p *Publisher) SetHealthy(healthy bool) { p.healthy.Store(healthy) }

// Healthy reports whether the bus is currently believed healthy.
func (p *Publisher) Healthy() bool { return p.healthy.Load() }

// Bus returns the underlying bus.Bus for direct subscription.
func (p *Publisher) Bus() *bus.Bus { return p.bus }

func (p *Publisher) tryPublish(msg bus.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			p.logger.Error("bus publish panicked", "error", r)
		}
	}()
	p.bus.Publish(msg)
	return true
}

// saveToFallback appends msg as one entry in the pending thread, under
// the same optimistic-concurrency discipline Persist uses for agent
// threads: the append is rejected if storedRev has drifted, in which case
// the watermark is re-primed and the append retried once.
func (p *Publisher) saveToFallback(msg bus.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry := jido.Entry{Kind: entryKind, Payload: msg}
	rev, err := p.storage.AppendThread(ctx, p.key, pendingThreadID, p.storedRev, []jido.Entry{entry})
	if err != nil && jido.IsKind(err, jido.KindStorage) {
		// Our watermark is stale (another process or a restart advanced
		// the journal); reprime and retry once rather than dropping msg.
		if th, getErr := p.storage.GetThread(ctx, p.key, pendingThreadID); getErr == nil {
			p.storedRev = th.Rev
			rev, err = p.storage.AppendThread(ctx, p.key, pendingThreadID, p.storedRev, []jido.Entry{entry})
		}
	}
	if err != nil {
		p.logger.Error("bus fallback append failed", "topic", msg.Topic, "error", err)
		return
	}
	p.storedRev = rev
}

func (p *Publisher) recoveryLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.recoverPending(ctx)
		}
	}
}

// recoverPending replays thread entries the recovery watermark hasn't
// caught up to yet, advancing the watermark only as each replay
// succeeds — a failed replay leaves it in place so the same entry is
// retried on the next tick instead of being skipped.
func (p *Publisher) recoverPending(ctx context.Context) {
	th, err := p.storage.GetThread(ctx, p.key, pendingThreadID)
	if err != nil {
		if errors.Is(err, jido.ErrNotFound) {
			p.markHealthyIfIdle()
		}
		return
	}

	p.mu.Lock()
	from := p.replayedRev
	p.mu.Unlock()

	pending := th.Suffix(from)
	if len(pending) == 0 {
		p.markHealthyIfIdle()
		return
	}

	replayed := 0
	for _, entry := range pending {
		msg, ok := entry.Payload.(bus.Message)
		if !ok {
			replayed++
			continue // not one of ours (shared journal); skip past it
		}
		if !p.tryPublish(msg) {
			break
		}
		replayed++
	}
	if replayed > 0 {
		p.mu.Lock()
		p.replayedRev = from + replayed
		p.mu.Unlock()
	}
	if replayed == len(pending) {
		p.markHealthyIfIdle()
		p.logger.Info("bus replayed pending messages", "count", replayed)
	}
}

func (p *Publisher) markHealthyIfIdle() {
	if !p.healthy.Load() {
		p.healthy.Store(true)
		p.logger.Info("bus recovered")
	}
}

// PublishTo is a convenience wrapper building a Message to topicPrefix +
// "." + id from system, tagged msgType.
func (p *Publisher) PublishTo(topicPrefix, id, msgType string, payload any) {
	p.Publish(bus.Message{Topic: topicPrefix + "." + id, From: "system", Type: msgType, Payload: payload})
}

// PublishFrom is PublishTo with an explicit From, for events that need to
// identify their originating agent.
func (p *Publisher) PublishFrom(topicPrefix, id, from, msgType string, payload any) {
	p.Publish(bus.Message{Topic: topicPrefix + "." + id, From: from, Type: msgType, Payload: payload})
}
