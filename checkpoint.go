package jido

// CheckpointVersion is the on-the-wire checkpoint schema version (§6).
const CheckpointVersion = 1

// Checkpoint is the serialized snapshot used for hibernate/thaw; it never
// embeds the full thread, only a pointer (§3, §6).
type Checkpoint struct {
	Version     int
	AgentModule string
	ID          string
	State       map[string]any
	Thread      *ThreadPointer
}

// Key is the persistence key an InstanceManager/Persist pair must use:
// {agent_module, {manager_name, raw_key}} (§4.5 namespacing invariant).
type Key struct {
	AgentModule string
	Manager     string
	Raw         string
}
