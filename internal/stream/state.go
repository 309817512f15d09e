package stream

// Materializer reconstructs state on the consuming side by applying
// snapshot and delta events in arrival order. A snapshot replaces
// everything; deltas patch the last materialized value. A consumer that
// reconnects mid-stream must not feed stale deltas in; it requests a fresh
// snapshot instead.
type Materializer struct {
	state  map[string]any
	primed bool
}

func NewMaterializer() *Materializer {
	return &Materializer{state: map[string]any{}}
}

// Apply dispatches one event. Non-state events are ignored so a consumer
// can feed its whole stream through without filtering.
func (m *Materializer) Apply(ev Event) error {
	switch ev.Type {
	case EventStateSnapshot:
		m.ApplySnapshot(ev.Snapshot)
		return nil
	case EventStateDelta:
		return m.ApplyDelta(ev.Delta)
	default:
		return nil
	}
}

// ApplySnapshot replaces the materialized state wholesale.
func (m *Materializer) ApplySnapshot(snapshot map[string]any) {
	next := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		next[k] = v
	}
	m.state = next
	m.primed = true
}

// ApplyDelta applies ordered patch ops cumulatively. Without a prior
// snapshot (or delta following one) there is nothing to patch and the ops
// are rejected.
func (m *Materializer) ApplyDelta(ops []DeltaOp) error {
	if !m.primed {
		return ErrDeltaBeforeSnapshot
	}
	for _, op := range ops {
		switch op.Op {
		case OpSet:
			m.state[op.Key] = op.Value
		case OpUnset:
			delete(m.state, op.Key)
		}
	}
	return nil
}

// Primed reports whether a snapshot has been seen yet.
func (m *Materializer) Primed() bool { return m.primed }

// State returns a copy of the current materialized state.
func (m *Materializer) State() map[string]any {
	out := make(map[string]any, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}
