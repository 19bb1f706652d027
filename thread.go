package jido

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one record in a Thread's append-only log (§3, §4.7).
type Entry struct {
	ID      string
	Seq     int
	At      time.Time
	Kind    string
	Payload any
	Refs    map[string]any
}

// DefaultEntryKind is used when an entry is appended without an explicit
// Kind (§4.7 normalization).
const DefaultEntryKind = "note"

// Thread is the append-only, monotonically-numbered event log attached to
// an agent via the __thread__ reserved state key (§3). Rev always equals
// len(Entries); entries are strictly monotonic in Seq starting at 0.
type Thread struct {
	ID       string
	Rev      int
	Entries  []Entry
	Metadata map[string]any
}

// NewThread creates an empty thread with the given id (generated if
// empty) and metadata, set once at creation.
func NewThread(id string, metadata map[string]any) *Thread {
	if id == "" {
		id = uuid.NewString()
	}
	return &Thread{ID: id, Rev: 0, Metadata: metadata}
}

// Append normalizes and appends entries to the thread's local tail,
// assigning sequential Seq numbers starting at the current Rev. It does
// not talk to storage; see Persist.Hibernate / StorageAdapter.AppendThread
// for the durable path.
func (t *Thread) Append(entries ...Entry) {
	for _, e := range entries {
		e.Seq = t.Rev
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = time.Now()
		}
		if e.Kind == "" {
			e.Kind = DefaultEntryKind
		}
		if e.Payload == nil {
			e.Payload = map[string]any{}
		}
		if e.Refs == nil {
			e.Refs = map[string]any{}
		}
		t.Entries = append(t.Entries, e)
		t.Rev++
	}
}

// Pointer returns the {id, rev} pointer recorded in a Checkpoint.
func (t *Thread) Pointer() ThreadPointer {
	if t == nil {
		return ThreadPointer{}
	}
	return ThreadPointer{ID: t.ID, Rev: t.Rev}
}

// ThreadPointer is the lightweight {id, rev} reference a Checkpoint stores
// in place of the full thread (§3).
type ThreadPointer struct {
	ID  string
	Rev int
}

// IsZero reports whether the pointer refers to no thread.
func (p ThreadPointer) IsZero() bool { return p.ID == "" }

// Suffix returns the entries from index from..end, the portion Persist
// needs to flush when stored.Rev == from.
func (t *Thread) Suffix(from int) []Entry {
	if from >= len(t.Entries) {
		return nil
	}
	if from < 0 {
		from = 0
	}
	out := make([]Entry, len(t.Entries)-from)
	copy(out, t.Entries[from:])
	return out
}
