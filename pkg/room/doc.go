// Package room implements the per-document coordinator: the
// authoritative relay that hosts the shared collaborative document,
// keeps its canonical markdown persisted, and drives the
// reconciliation protocol toward connected client sessions.
//
// A Room owns the collaborative document for one gist id; client
// sessions hold non-owning connections for the duration of their
// membership. The Hub keys rooms by gist id and evicts a room once
// its last session leaves, after a final persistence pass — the
// hibernation analogue of the durable per-document room.
//
// # Save cycle
//
// The room is pull-based. Document changes arm a debounce timer;
// when it fires the room issues a request-markdown (with a fresh
// request id) to one connected session, and only a
// canonical-markdown echoing an outstanding request id is accepted.
// The answered text is persisted with exponential backoff; progress
// and failures are broadcast as sync-status and error-retrying, and
// the new canonical text reaches the other sessions as
// remote-changed. Saves are single-writer per document: a change
// arriving mid-save queues exactly one follow-up cycle.
package room
