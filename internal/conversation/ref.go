// ABOUTME: ConversationRef parsing for the id / name / default addressing scheme
// ABOUTME: A ref is a UUID, a conversation name, or the "-" default sentinel

package conversation

import (
	"github.com/google/uuid"
)

// DefaultRef is the sentinel clients send to address their most recently
// active conversation instead of naming one.
const DefaultRef = "-"

// RefKind discriminates the addressing modes of a ConversationRef.
type RefKind int

const (
	// RefByID addresses a conversation by its UUID.
	RefByID RefKind = iota
	// RefByName addresses a conversation by its owner-scoped name.
	RefByName
	// RefDefault addresses the owner's most recently active conversation.
	RefDefault
)

// Ref is a parsed conversation reference. The Value field holds the UUID
// for RefByID, the name for RefByName, and is empty for RefDefault.
type Ref struct {
	Kind  RefKind
	Value string
}

// ParseRef classifies a raw reference string. "-" is the default sentinel,
// anything that parses as a UUID addresses by id, everything else is a name.
// Names that merely look UUID-shaped are indistinguishable from ids, so
// clients that name conversations with UUIDs must address them by id.
func ParseRef(s string) Ref {
	if s == DefaultRef || s == "" {
		return Ref{Kind: RefDefault}
	}
	if uuid.Validate(s) == nil {
		return Ref{Kind: RefByID, Value: s}
	}
	return Ref{Kind: RefByName, Value: s}
}
