// Package conversation provides high-level conversation management services.
//
// # Overview
//
// The conversation package sits between the HTTP/WebSocket handlers and the
// store, providing conversation-level abstractions: reference resolution,
// naming rules, forking, and mutation event broadcasting.
//
// # Service
//
// The Service coordinates conversation operations:
//
//	svc := conversation.New(store, broadcaster, logger)
//
// Key operations:
//
//   - LogMessage(ctx, owner, ref, role, content): Append a message
//   - NewConversation(ctx, owner, name, initial): Create, seeded atomically
//   - Fork(ctx, owner, ref, messageID): Copy a prefix into a new conversation
//   - Rename(ctx, owner, ref, name): Rename with collision fallback
//   - History(ctx, owner, ref, limit, page): Read messages in order
//
// # Conversation References
//
// Clients address conversations three ways, parsed by ParseRef:
//
//   - By id: a UUID string
//   - By name: any other string, scoped to the owner
//   - Default: the "-" sentinel, resolving to the owner's most recently
//     active conversation
//
// Refs are resolved exactly once, at the service boundary. A ref that
// resolves to nothing is a not-found error, never a crash.
//
// # Naming Rules
//
// The "#" character is reserved for client-side tag syntax and is stripped
// before persistence. Auto-generated names derive from the first user
// message. Name collisions retry with a numeric suffix a bounded number of
// times and then fall back to a unique timestamp-based name, so renames
// always terminate successfully.
//
// # Event Broadcasting
//
// Every persisted message mutation is published once to the
// EventBroadcaster:
//
//	ch, subID := broadcaster.Subscribe(ctx, conversationID)
//
// Events carry a kind (added, updated, deleted), the conversation ID, and
// the message. Live sync sessions subscribe to push deltas to clients
// without polling the store.
package conversation
