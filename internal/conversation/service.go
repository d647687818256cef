// ABOUTME: Service is the central layer for conversation and message operations
// ABOUTME: Resolves refs, enforces naming rules, and publishes mutation events

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/threadwell/threadwell/internal/store"
)

const (
	// maxNameAttempts bounds the numeric-suffix retries before falling back
	// to a unique generated name.
	maxNameAttempts = 5

	// maxAutoNameLen caps names derived from message content.
	maxAutoNameLen = 48

	// autoNameWords is how many words of the first user message seed an
	// auto-generated name.
	autoNameWords = 5
)

// Service is the conversation layer. All conversation and message mutations
// flow through here: refs are resolved once at this boundary, naming
// collisions are settled, and every message mutation is published to the
// broadcaster exactly once after it is persisted.
type Service struct {
	store       store.Store
	broadcaster *EventBroadcaster
	logger      *slog.Logger
}

// New creates a conversation Service.
func New(st store.Store, broadcaster *EventBroadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: broadcaster,
		logger:      logger.With("component", "conversation"),
	}
}

// Resolve maps a parsed ref to the owner's conversation. RefByID refs that
// point at another owner's conversation resolve to ErrNotFound rather than
// leaking existence. RefDefault resolves to the owner's most recently active
// conversation (greatest updated_at, ties broken by created_at).
func (s *Service) Resolve(ctx context.Context, ownerID string, ref Ref) (*store.Conversation, error) {
	switch ref.Kind {
	case RefByID:
		conv, err := s.store.GetConversation(ctx, ref.Value)
		if err != nil {
			return nil, err
		}
		if conv.OwnerID != ownerID {
			return nil, store.ErrNotFound
		}
		return conv, nil

	case RefByName:
		return s.store.GetConversationByName(ctx, ownerID, ref.Value)

	case RefDefault:
		details, err := s.store.ListConversationsDetailed(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		var bestID string
		var best store.ConversationDetail
		for id, d := range details {
			if bestID == "" ||
				d.UpdatedAt.After(best.UpdatedAt) ||
				(d.UpdatedAt.Equal(best.UpdatedAt) && d.CreatedAt.After(best.CreatedAt)) {
				bestID, best = id, d
			}
		}
		if bestID == "" {
			return nil, store.ErrNotFound
		}
		return s.store.GetConversation(ctx, bestID)

	default:
		return nil, fmt.Errorf("unknown ref kind %d", ref.Kind)
	}
}

// LogMessage appends a message to the referenced conversation and publishes
// the addition. When the default ref resolves to nothing (the owner has no
// conversations yet) a new conversation is created with a name derived from
// the message content.
func (s *Service) LogMessage(ctx context.Context, ownerID string, ref Ref, role, content string) (*store.Message, error) {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		if ref.Kind == RefDefault && errors.Is(err, store.ErrNotFound) {
			conv, err = s.NewConversation(ctx, ownerID, deriveName(content), nil)
		}
		if err != nil {
			return nil, err
		}
	}

	messageID, err := s.store.AppendMessage(ctx, conv.ID, role, content)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, conv.ID, messageID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("message logged",
		"conversation_id", conv.ID,
		"message_id", messageID,
		"role", role)

	s.publish(&Event{Kind: EventAdded, ConversationID: conv.ID, Message: msg})
	return msg, nil
}

// NewConversation creates a conversation for the owner, optionally seeded
// with initial messages (inserted atomically with the conversation row).
// An empty or sentinel name triggers auto-naming with collision fallback;
// an explicit name that collides propagates ErrConflict.
func (s *Service) NewConversation(ctx context.Context, ownerID, name string, initial []*store.Message) (*store.Conversation, error) {
	name = sanitizeName(name)
	auto := name == "" || name == DefaultRef
	if auto {
		name = deriveNameFromMessages(initial)
	}

	now := time.Now().UTC().Truncate(time.Second)
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, msg := range initial {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
	}

	err := s.store.CreateConversation(ctx, conv, initial)
	if auto {
		for attempt := 2; errors.Is(err, store.ErrConflict); attempt++ {
			if attempt > maxNameAttempts {
				conv.Name = fallbackName()
			} else {
				conv.Name = fmt.Sprintf("%s %d", name, attempt)
			}
			err = s.store.CreateConversation(ctx, conv, initial)
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"owner_id", ownerID,
		"name", conv.Name)
	return conv, nil
}

// Fork copies the referenced conversation up to and including the message
// with messageID into a new conversation named "<name> (fork)", with the
// usual collision fallback. The copy gets fresh message IDs and is inserted
// atomically. Returns ErrNotFound if the fork point is not in the
// conversation.
func (s *Service) Fork(ctx context.Context, ownerID string, ref Ref, messageID string) (*store.Conversation, error) {
	source, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ReadMessages(ctx, source.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	forkPoint := -1
	for i, msg := range messages {
		if msg.ID == messageID {
			forkPoint = i
			break
		}
	}
	if forkPoint < 0 {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC().Truncate(time.Second)
	copies := make([]*store.Message, 0, forkPoint+1)
	for _, msg := range messages[:forkPoint+1] {
		copies = append(copies, &store.Message{
			ID:        uuid.New().String(),
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}

	baseName := source.Name + " (fork)"
	fork := &store.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      baseName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.CreateConversation(ctx, fork, copies)
	for attempt := 2; errors.Is(err, store.ErrConflict); attempt++ {
		if attempt > maxNameAttempts {
			fork.Name = fallbackName()
		} else {
			fork.Name = fmt.Sprintf("%s %d", baseName, attempt)
		}
		err = s.store.CreateConversation(ctx, fork, copies)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation forked",
		"source_id", source.ID,
		"fork_id", fork.ID,
		"fork_name", fork.Name,
		"messages", len(copies))
	return fork, nil
}

// Rename changes the referenced conversation's name. An empty or sentinel
// newName derives a name from the first user message. Collisions retry with
// a numeric suffix up to a bound, then fall back to a unique generated name,
// so the operation always terminates with a successful rename. Returns the
// name finally applied.
func (s *Service) Rename(ctx context.Context, ownerID string, ref Ref, newName string) (string, error) {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return "", err
	}

	newName = sanitizeName(newName)
	if newName == "" || newName == DefaultRef {
		messages, err := s.store.ReadMessages(ctx, conv.ID, 0, 0)
		if err != nil {
			return "", err
		}
		newName = deriveNameFromMessages(messages)
	}

	candidate := newName
	err = s.store.RenameConversation(ctx, conv.ID, candidate)
	for attempt := 2; errors.Is(err, store.ErrConflict); attempt++ {
		if attempt > maxNameAttempts {
			candidate = fallbackName()
		} else {
			candidate = fmt.Sprintf("%s %d", newName, attempt)
		}
		err = s.store.RenameConversation(ctx, conv.ID, candidate)
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("conversation renamed",
		"conversation_id", conv.ID,
		"name", candidate)
	return candidate, nil
}

// UpdateMessage rewrites a message's content in place, records who changed
// it, and publishes the update.
func (s *Service) UpdateMessage(ctx context.Context, ownerID string, ref Ref, messageID, newContent, updatedBy string) (*store.Message, error) {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateMessageByID(ctx, conv.ID, messageID, newContent, updatedBy); err != nil {
		return nil, err
	}
	return s.finishUpdate(ctx, conv.ID, messageID)
}

// UpdateMessageByContent rewrites the first message matching oldContent.
// Deprecated: content addressing is ambiguous when messages repeat; new
// clients address messages by id.
func (s *Service) UpdateMessageByContent(ctx context.Context, ownerID string, ref Ref, oldContent, newContent, updatedBy string) (*store.Message, error) {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}

	messageID, err := s.store.UpdateMessageByContent(ctx, conv.ID, oldContent, newContent, updatedBy)
	if err != nil {
		return nil, err
	}
	return s.finishUpdate(ctx, conv.ID, messageID)
}

func (s *Service) finishUpdate(ctx context.Context, conversationID, messageID string) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	s.publish(&Event{Kind: EventUpdated, ConversationID: conversationID, Message: msg})
	return msg, nil
}

// DeleteMessage removes a message by id and publishes the deletion.
func (s *Service) DeleteMessage(ctx context.Context, ownerID string, ref Ref, messageID string) error {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMessageByID(ctx, conv.ID, messageID); err != nil {
		return err
	}
	s.publish(&Event{Kind: EventDeleted, ConversationID: conv.ID, Message: &store.Message{ID: messageID, ConversationID: conv.ID}})
	return nil
}

// DeleteMessageByContent removes the first message matching content.
// Deprecated: prefer DeleteMessage.
func (s *Service) DeleteMessageByContent(ctx context.Context, ownerID string, ref Ref, content string) error {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return err
	}

	messageID, err := s.store.DeleteMessageByContent(ctx, conv.ID, content)
	if err != nil {
		return err
	}
	s.publish(&Event{Kind: EventDeleted, ConversationID: conv.ID, Message: &store.Message{ID: messageID, ConversationID: conv.ID}})
	return nil
}

// History returns the referenced conversation's messages in insertion order.
// limit<=0 returns everything; page is 1-based.
func (s *Service) History(ctx context.Context, ownerID string, ref Ref, limit, page int) ([]*store.Message, error) {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}
	return s.store.ReadMessages(ctx, conv.ID, limit, page)
}

// Delete removes the referenced conversation and its messages. Deleting a
// conversation that does not exist is a no-op.
func (s *Service) Delete(ctx context.Context, ownerID string, ref Ref) error {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.DeleteConversation(ctx, conv.ID)
}

// Pin sets the referenced conversation's pin position. A nil pinOrder
// unpins. Pinning is a list-presentation change and does not count as
// activity.
func (s *Service) Pin(ctx context.Context, ownerID string, ref Ref, pinOrder *int) error {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return err
	}
	return s.store.SetPinOrder(ctx, conv.ID, pinOrder)
}

// MarkFeedback flags a message as having received external feedback.
func (s *Service) MarkFeedback(ctx context.Context, ownerID string, ref Ref, messageID string, received bool) error {
	conv, err := s.Resolve(ctx, ownerID, ref)
	if err != nil {
		return err
	}
	return s.store.SetMessageFeedback(ctx, conv.ID, messageID, received)
}

// List returns the owner's conversations, pinned first.
func (s *Service) List(ctx context.Context, ownerID string) ([]store.ConversationSummary, error) {
	return s.store.ListConversations(ctx, ownerID)
}

// ListDetailed returns the owner's conversations keyed by id with
// timestamps included.
func (s *Service) ListDetailed(ctx context.Context, ownerID string) (map[string]store.ConversationDetail, error) {
	return s.store.ListConversationsDetailed(ctx, ownerID)
}

func (s *Service) publish(event *Event) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(event)
	}
}

// sanitizeName strips reserved characters from a requested name. "#" is
// reserved for client-side tag syntax and never persisted.
func sanitizeName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, "#", ""))
}

// deriveNameFromMessages builds a name from the first user message, falling
// back to a timestamp name when there is nothing to derive from.
func deriveNameFromMessages(messages []*store.Message) string {
	for _, msg := range messages {
		if msg.Role == "user" {
			if name := deriveName(msg.Content); name != "" {
				return name
			}
		}
	}
	return fallbackName()
}

// deriveName takes the leading words of content as a candidate name.
func deriveName(content string) string {
	words := strings.Fields(sanitizeName(content))
	if len(words) > autoNameWords {
		words = words[:autoNameWords]
	}
	name := strings.Join(words, " ")
	if len(name) > maxAutoNameLen {
		name = strings.TrimSpace(name[:maxAutoNameLen])
	}
	if name == "" {
		return fallbackName()
	}
	return name
}

// fallbackName produces a unique name for when every candidate collided or
// no content was available to derive from.
func fallbackName() string {
	return fmt.Sprintf("conversation %s %s",
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		uuid.New().String()[:8])
}
