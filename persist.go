package jido

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentjido/jido-sub001/internal/logging"
)

// StorageAdapter is the durability seam Persist drives: a checkpoint store
// plus an append-only thread journal, keyed by the {agent_module,
// manager_name, raw_key} triple (§4.5, §4.6, §4.7). storage/memory and
// storage/postgres are the two production implementations.
type StorageAdapter interface {
	GetCheckpoint(ctx context.Context, key Key) (*Checkpoint, error)
	PutCheckpoint(ctx context.Context, key Key, cp *Checkpoint) error

	// GetThread loads a thread's full entry log, or ErrNotFound if no
	// thread has ever been journaled for key.
	GetThread(ctx context.Context, key Key, threadID string) (*Thread, error)

	// AppendThread performs a compare-and-set flush: entries are appended
	// only if the store's current revision for threadID equals
	// expectedRev. Returns the store's revision after the call (whether
	// or not it advanced) so the caller can detect a conflict. A
	// threadID unseen before is created with rev 0.
	AppendThread(ctx context.Context, key Key, threadID string, expectedRev int, entries []Entry) (storedRev int, err error)
}

// Persist implements hibernate/thaw over a StorageAdapter (§4.6, §4.7).
// One Persist may be shared by every AgentServer using the same adapter;
// it holds no per-agent state itself.
type Persist struct {
	Storage StorageAdapter
	Logger  *slog.Logger
}

// NewPersist builds a Persist. logger may be nil, in which case the
// package default is used.
func NewPersist(storage StorageAdapter, logger *slog.Logger) *Persist {
	if logger == nil {
		logger = logging.Default()
	}
	return &Persist{Storage: storage, Logger: logger}
}

// Hibernate flushes the agent's thread tail (if any) and writes a
// checkpoint (§4.6). It is idempotent: calling it twice in a row with no
// intervening mutation flushes no thread entries the second time, because
// the thread's local revision already matches what was flushed (§8
// invariant); the same checkpoint is written again.
func (p *Persist) Hibernate(ctx context.Context, key Key, spec AgentSpec, agent *Agent) error {
	var statePart map[string]any
	var err error
	if spec.Checkpoint != nil {
		statePart, err = spec.Checkpoint(agent)
		if err != nil {
			return Wrap(err, "Persist.Hibernate", KindStorage, "custom checkpoint builder failed")
		}
	} else {
		statePart = agent.StateWithoutThread()
	}

	var ptr *ThreadPointer
	if th, ok := agent.Thread(); ok && th != nil {
		if err := p.flushThread(ctx, key, th); err != nil {
			return err
		}
		tp := th.Pointer()
		ptr = &tp
	}

	cp := &Checkpoint{
		Version:     CheckpointVersion,
		AgentModule: spec.Module,
		ID:          agent.ID,
		State:       statePart,
		Thread:      ptr,
	}
	if err := p.Storage.PutCheckpoint(ctx, key, cp); err != nil {
		return StorageError("Persist.Hibernate", StorageConflict, err)
	}
	p.Logger.Info("agent hibernated", logging.FieldAgentID, agent.ID, logging.FieldManager, key.Manager)
	return nil
}

// flushThread appends whatever local entries the store doesn't have yet.
// A conflict where the store's revision is already >= the local thread's
// own last-flushed watermark is treated as "already flushed", not an
// error — a second hibernate call for an unchanged thread is a no-op
// (§4.7 idempotence).
func (p *Persist) flushThread(ctx context.Context, key Key, th *Thread) error {
	existing, err := p.Storage.GetThread(ctx, key, th.ID)
	fromRev := 0
	switch {
	case err == nil && existing != nil:
		fromRev = existing.Rev
	case errors.Is(err, ErrNotFound):
		fromRev = 0
	case err != nil:
		return Wrap(err, "Persist.flushThread", KindStorage, "thread lookup failed")
	}

	if fromRev >= th.Rev {
		return nil // already flushed
	}
	toFlush := th.Suffix(fromRev)
	if len(toFlush) == 0 {
		return nil
	}

	storedRev, err := p.Storage.AppendThread(ctx, key, th.ID, fromRev, toFlush)
	if err != nil {
		// Another writer may have raced us: if the store now holds at least
		// everything the local thread has, the flush already happened.
		if latest, gerr := p.Storage.GetThread(ctx, key, th.ID); gerr == nil && latest.Rev >= th.Rev {
			return nil
		}
		return Wrap(err, "Persist.flushThread", KindStorage, "thread append failed")
	}
	if storedRev < th.Rev && storedRev != fromRev+len(toFlush) {
		// Someone else advanced the journal concurrently between our read
		// and write; surface as a thread_rev_regression for the caller to
		// retry rather than silently discarding entries.
		return StorageError("Persist.flushThread", StorageThreadRevRegression, nil)
	}
	return nil
}

// Thaw restores an Agent and Strategy from the last checkpoint stored
// under key, reattaching its thread if one was pointed to (§4.6).
func (p *Persist) Thaw(ctx context.Context, spec AgentSpec, key Key) (*Agent, Strategy, error) {
	cp, err := p.Storage.GetCheckpoint(ctx, key)
	if err != nil {
		return nil, nil, Wrap(err, "Persist.Thaw", KindStorage, "no checkpoint for key")
	}

	var agent *Agent
	var strategy Strategy
	if spec.Restore != nil {
		agent, strategy, err = spec.Restore(cp.ID, cp.State)
	} else {
		agent, strategy, err = spec.New(cp.ID, cp.State)
	}
	if err != nil {
		return nil, nil, Wrap(err, "Persist.Thaw", KindInvalidAgent, "restore failed")
	}

	if cp.Thread != nil && !cp.Thread.IsZero() {
		th, err := p.Storage.GetThread(ctx, key, cp.Thread.ID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil, StorageError("Persist.Thaw", StorageMissingThread, err)
		}
		if err != nil {
			return nil, nil, Wrap(err, "Persist.Thaw", KindStorage, "thread lookup failed")
		}
		if th.Rev != cp.Thread.Rev {
			return nil, nil, StorageError("Persist.Thaw", StorageThreadMismatch, nil)
		}
		agent.AttachThread(th)
	}

	p.Logger.Info("agent thawed", logging.FieldAgentID, agent.ID, logging.FieldManager, key.Manager)
	return agent, strategy, nil
}
