// Package reconcile implements the per-document reconciliation state
// machine: the protocol core that keeps one client's local document
// view consistent with the room's canonical markdown.
//
// # Model
//
// The core is a pure transition function:
//
//	Step(State, Event) -> (State, []Effect)
//
// Events are decoded protocol messages, local document changes, user
// conflict resolutions, and results of boundary fetches. Effects are
// outbound messages or calls to external collaborators (seed or
// overwrite the document, fetch canonical content). All asynchronous
// waiting stays outside Step, so transitions are synchronous and
// deterministic under unit test.
//
// Machine wraps Step with the boundary plumbing: it subscribes to
// document changes, executes effects, runs fetches on goroutines, and
// guards against state mutation after close.
//
// # States
//
//	Uninitialized → Syncing ⇄ Saved ⇄ ErrorRetrying
//
// Conflict is reachable from Syncing and Saved; Saved and Conflict
// re-enter Syncing on further local or remote change. There is no
// terminal state: the machine is discarded when its session closes.
//
// # Conflicts
//
// Divergence detection is byte-for-byte markdown comparison. Two
// documents that render identically but differ in whitespace still
// conflict. Local edits are never silently overwritten: a conflict
// holds both texts verbatim until resolved by PushLocal (local wins)
// or DiscardLocal (remote wins).
package reconcile
