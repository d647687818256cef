// Package livesync streams conversation changes to clients over WebSocket.
//
// # Overview
//
// A sync session gives a client a consistent view of one conversation: a
// full baseline replay followed by a push stream of deltas. Clients never
// poll; every persisted mutation is pushed exactly once.
//
// # Session Lifecycle
//
// Each session runs a small state machine:
//
//	connecting -> authenticating -> streaming -> closed
//	                  |                 |
//	                  +----> errored <--+
//
// Authentication and ref resolution happen after the WebSocket upgrade so
// failures reach the client as an error frame rather than a bare HTTP
// status. Terminal states tear the session down and remove it from the Hub.
//
// # Protocol
//
// Frames are JSON. On entry to streaming the session sends one
// initial_message frame per existing message in insertion order, then a
// connected frame carrying the resolved conversation id and name. After
// that:
//
//   - message_added: a new message was appended
//   - message_updated: a message was edited in place
//   - heartbeat: sent every heartbeat interval while the stream is idle
//   - error: terminal failure, the connection closes after this
//
// # Ordering and Gaps
//
// The session subscribes to the conversation's event stream before reading
// the baseline, so a mutation that lands during replay is buffered and
// delivered after the connected frame instead of being lost. Events are
// delivered in mutation order.
//
// # Disconnects
//
// A read pump blocks on the connection; any read error cancels the session
// context and the streaming loop exits within one select iteration. Slow
// consumers are bounded by the subscription buffer: overflowing events are
// dropped for that subscriber only.
package livesync
