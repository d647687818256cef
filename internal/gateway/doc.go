// Package gateway assembles the threadwell server.
//
// # Overview
//
// The gateway owns every long-lived component: the SQLite store, the
// conversation service, the event broadcaster, the JWT verifier, the live
// sync hub, and the HTTP server. New wires them together from a config.Config
// and Run starts the server, blocking until a shutdown signal, context
// cancellation, or a fatal server error.
//
// # HTTP Surface
//
// All routes live under /api/conversations and require a bearer token, with
// two exceptions: GET /health is open, and the per-conversation stream
// endpoint authenticates inside the WebSocket protocol so that clients
// receive a structured error frame instead of a failed upgrade.
//
// Conversation references in paths accept a conversation ID, a conversation
// name, or "-" for the owner's most recently active conversation.
//
//	GET    /api/conversations                         list (id, name) pairs
//	GET    /api/conversations/detailed                list with timestamps
//	POST   /api/conversations                         create, optional seed messages
//	DELETE /api/conversations/{ref}                   delete (idempotent)
//	GET    /api/conversations/{ref}/messages          read history, ?limit=&page=
//	POST   /api/conversations/{ref}/messages          append a message
//	PATCH  /api/conversations/{ref}/messages/{id}     edit by message ID
//	DELETE /api/conversations/{ref}/messages/{id}     delete by message ID
//	POST   /api/conversations/{ref}/messages/update   edit first content match
//	POST   /api/conversations/{ref}/messages/delete   delete first content match
//	POST   /api/conversations/{ref}/messages/{id}/feedback  set feedback flag
//	POST   /api/conversations/{ref}/rename            rename, auto when name empty
//	POST   /api/conversations/{ref}/fork              copy up to a message
//	POST   /api/conversations/{ref}/pin               set or clear pin order
//	GET    /api/conversations/{ref}/stream            WebSocket live sync
//
// # Error Responses
//
// Failures return {"error": "..."} JSON. Store sentinel errors map to 404
// (not found) and 409 (name conflict); bad input maps to 400; everything
// else is a logged 500.
//
// # Shutdown
//
// Run performs a graceful shutdown: the HTTP server drains in-flight
// requests under a five second deadline, then the sync hub, broadcaster,
// and store close in that order so sessions observe closed event channels
// before the database goes away.
package gateway
