// Package postgres is the durable jido.StorageAdapter backed by pgx/v5
// (§11): one UPSERTed row per agent checkpoint, one row per thread entry,
// using the same BaseStore/collectRows shape the rest of this lineage's
// store layer uses.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jido "github.com/agentjido/jido-sub001"
)

// BaseStore is the shared connection-pool embed every store in this
// package builds on, mirroring the lineage's usual store-layer shape.
type BaseStore struct{ pool *pgxpool.Pool }

// NewBaseStore wraps an existing pool.
func NewBaseStore(pool *pgxpool.Pool) BaseStore { return BaseStore{pool: pool} }

func collectRows[T any](rows pgx.Rows) ([]T, error) {
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
}

func collectOne[T any](rows pgx.Rows) (*T, error) {
	items, err := collectRows[T](rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Schema is the DDL this adapter expects. Callers run migrations however
// their deployment already does (the teacher lineage runs a migrate step
// from cmd/server/main.go); this constant exists so that step has
// something to execute.
const Schema = `
CREATE TABLE IF NOT EXISTS jido_checkpoints (
	agent_module TEXT NOT NULL,
	manager_name TEXT NOT NULL,
	raw_key      TEXT NOT NULL,
	version      INT NOT NULL,
	agent_id     TEXT NOT NULL,
	state        JSONB NOT NULL,
	thread_id    TEXT,
	thread_rev   INT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (agent_module, manager_name, raw_key)
);

CREATE TABLE IF NOT EXISTS jido_thread_entries (
	agent_module TEXT NOT NULL,
	manager_name TEXT NOT NULL,
	raw_key      TEXT NOT NULL,
	thread_id    TEXT NOT NULL,
	seq          INT NOT NULL,
	entry_id     TEXT NOT NULL,
	at           TIMESTAMPTZ NOT NULL,
	kind         TEXT NOT NULL,
	payload      JSONB NOT NULL,
	refs         JSONB NOT NULL,
	PRIMARY KEY (agent_module, manager_name, raw_key, thread_id, seq)
);
`

// Store is the pgx/v5-backed jido.StorageAdapter.
type Store struct{ BaseStore }

// New builds a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{NewBaseStore(pool)}
}

type checkpointRow struct {
	AgentModule string
	ManagerName string
	RawKey      string
	Version     int
	AgentID     string
	State       []byte
	ThreadID    *string
	ThreadRev   *int
}

func (s *Store) GetCheckpoint(ctx context.Context, key jido.Key) (*jido.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_module, manager_name, raw_key, version, agent_id, state, thread_id, thread_rev
		 FROM jido_checkpoints WHERE agent_module=$1 AND manager_name=$2 AND raw_key=$3`,
		key.AgentModule, key.Manager, key.Raw)
	if err != nil {
		return nil, jido.StorageError("postgres.Store.GetCheckpoint", jido.StorageConflict, err)
	}
	row, err := collectOne[checkpointRow](rows)
	if err != nil {
		return nil, jido.StorageError("postgres.Store.GetCheckpoint", jido.StorageConflict, err)
	}
	if row == nil {
		return nil, jido.ErrNotFound
	}

	var state map[string]any
	if err := json.Unmarshal(row.State, &state); err != nil {
		return nil, jido.StorageError("postgres.Store.GetCheckpoint", jido.StorageConflict, err)
	}
	cp := &jido.Checkpoint{
		Version:     row.Version,
		AgentModule: row.AgentModule,
		ID:          row.AgentID,
		State:       state,
	}
	if row.ThreadID != nil && row.ThreadRev != nil {
		cp.Thread = &jido.ThreadPointer{ID: *row.ThreadID, Rev: *row.ThreadRev}
	}
	return cp, nil
}

func (s *Store) PutCheckpoint(ctx context.Context, key jido.Key, cp *jido.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return jido.Wrap(err, "postgres.Store.PutCheckpoint", jido.KindStorage, "marshal state failed")
	}
	var threadID *string
	var threadRev *int
	if cp.Thread != nil {
		threadID, threadRev = &cp.Thread.ID, &cp.Thread.Rev
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jido_checkpoints (agent_module, manager_name, raw_key, version, agent_id, state, thread_id, thread_rev, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		 ON CONFLICT (agent_module, manager_name, raw_key) DO UPDATE SET
		   version=EXCLUDED.version, agent_id=EXCLUDED.agent_id, state=EXCLUDED.state,
		   thread_id=EXCLUDED.thread_id, thread_rev=EXCLUDED.thread_rev, updated_at=now()`,
		key.AgentModule, key.Manager, key.Raw, cp.Version, cp.ID, stateJSON, threadID, threadRev)
	if err != nil {
		return jido.StorageError("postgres.Store.PutCheckpoint", jido.StorageConflict, err)
	}
	return nil
}

type entryRow struct {
	EntryID string
	Seq     int
	At      time.Time
	Kind    string
	Payload []byte
	Refs    []byte
}

func (s *Store) GetThread(ctx context.Context, key jido.Key, threadID string) (*jido.Thread, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, seq, at, kind, payload, refs FROM jido_thread_entries
		 WHERE agent_module=$1 AND manager_name=$2 AND raw_key=$3 AND thread_id=$4 ORDER BY seq ASC`,
		key.AgentModule, key.Manager, key.Raw, threadID)
	if err != nil {
		return nil, jido.StorageError("postgres.Store.GetThread", jido.StorageConflict, err)
	}
	recs, err := collectRows[entryRow](rows)
	if err != nil {
		return nil, jido.StorageError("postgres.Store.GetThread", jido.StorageConflict, err)
	}
	if len(recs) == 0 {
		return nil, jido.ErrNotFound
	}

	th := &jido.Thread{ID: threadID}
	for _, r := range recs {
		var payload, refs map[string]any
		_ = json.Unmarshal(r.Payload, &payload)
		_ = json.Unmarshal(r.Refs, &refs)
		th.Entries = append(th.Entries, jido.Entry{ID: r.EntryID, Seq: r.Seq, At: r.At, Kind: r.Kind, Payload: payload, Refs: refs})
	}
	th.Rev = len(th.Entries)
	return th, nil
}

// AppendThread flushes entries if and only if the stored row count for
// threadID equals expectedRev, implemented as a COUNT(*) check followed by
// one INSERT per entry inside one transaction (§4.6 compare-and-set).
func (s *Store) AppendThread(ctx context.Context, key jido.Key, threadID string, expectedRev int, entries []jido.Entry) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, jido.StorageError("postgres.Store.AppendThread", jido.StorageConflict, err)
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM jido_thread_entries WHERE agent_module=$1 AND manager_name=$2 AND raw_key=$3 AND thread_id=$4`,
		key.AgentModule, key.Manager, key.Raw, threadID).Scan(&current)
	if err != nil {
		return 0, jido.StorageError("postgres.Store.AppendThread", jido.StorageConflict, err)
	}
	if current != expectedRev {
		return current, jido.StorageError("postgres.Store.AppendThread", jido.StorageConflict, nil)
	}

	for i, e := range entries {
		payload, _ := json.Marshal(e.Payload)
		refs, _ := json.Marshal(e.Refs)
		_, err = tx.Exec(ctx,
			`INSERT INTO jido_thread_entries (agent_module, manager_name, raw_key, thread_id, seq, entry_id, at, kind, payload, refs)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			key.AgentModule, key.Manager, key.Raw, threadID, current+i, e.ID, e.At, e.Kind, payload, refs)
		if err != nil {
			return current, jido.StorageError("postgres.Store.AppendThread", jido.StorageConflict, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return current, jido.StorageError("postgres.Store.AppendThread", jido.StorageConflict, err)
	}
	return current + len(entries), nil
}
