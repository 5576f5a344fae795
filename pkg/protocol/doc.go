// Package protocol implements the JSON wire protocol for gist
// reconciliation.
//
// The protocol keeps a collaboratively edited markdown document, its
// persisted canonical text, and each connected client's view
// consistent. It defines ten message kinds exchanged between a room
// (the per-document coordinator) and its client sessions over
// WebSocket connections.
//
// # Wire Format
//
// Every message is a JSON object with two fields:
//
//	{"type": "<kind>", "payload": {...}}
//
// The payload shape is determined solely by the type. Decode rejects
// unknown kinds, non-object payloads, and payloads missing required
// fields; it never guesses.
//
// # Directions
//
// Each kind flows in exactly one direction, either room → client or
// client → room. The table is total: every kind is mapped, and the
// transport boundary uses it to drop misdirected traffic. A message
// arriving on the wrong side is a protocol violation, reported and
// dropped, never retried.
//
//	room → client: request-markdown, needs-init, reload-remote,
//	               remote-changed, sync-status, error-retrying, conflict
//	client → room: canonical-markdown, push-local, discard-local
//
// # Request Correlation
//
// A request-markdown carries a unique requestId and the answering
// canonical-markdown must echo it. Receivers ignore a
// canonical-markdown whose requestId matches no outstanding request.
//
// # Usage
//
//	msg := protocol.NewRequestMarkdown("r1")
//	data, err := protocol.Encode(msg)
//
//	decoded, err := protocol.Decode(data)
//	if err != nil {
//	    // Malformed, unknown kind, or invalid payload
//	}
//	if !protocol.IsClientOriginated(decoded) {
//	    // Drop: this side only accepts client traffic
//	}
package protocol
