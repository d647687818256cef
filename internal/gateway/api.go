// ABOUTME: REST handlers for conversation and message operations
// ABOUTME: Maps service errors to JSON responses with appropriate status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/threadwell/threadwell/internal/auth"
	"github.com/threadwell/threadwell/internal/conversation"
	"github.com/threadwell/threadwell/internal/store"
)

// conversationResponse is the JSON shape for a single conversation.
type conversationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PinOrder  *int   `json:"pin_order,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// messageResponse is the JSON shape for a single message.
type messageResponse struct {
	ID               string  `json:"id"`
	Role             string  `json:"role"`
	Content          string  `json:"content"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        *string `json:"updated_at,omitempty"`
	UpdatedBy        *string `json:"updated_by,omitempty"`
	FeedbackReceived bool    `json:"feedback_received"`
}

type createConversationRequest struct {
	Name     string `json:"name"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

type updateByContentRequest struct {
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
}

type deleteByContentRequest struct {
	Content string `json:"content"`
}

type feedbackRequest struct {
	Received bool `json:"received"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type forkRequest struct {
	MessageID string `json:"message_id"`
}

type pinRequest struct {
	PinOrder *int `json:"pin_order"`
}

func toConversationResponse(c *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID,
		Name:      c.Name,
		PinOrder:  c.PinOrder,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toMessageResponse(m *store.Message) messageResponse {
	resp := messageResponse{
		ID:               m.ID,
		Role:             m.Role,
		Content:          m.Content,
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedBy:        m.UpdatedBy,
		FeedbackReceived: m.FeedbackReceived,
	}
	if m.UpdatedAt != nil {
		ts := m.UpdatedAt.UTC().Format(time.RFC3339)
		resp.UpdatedAt = &ts
	}
	return resp
}

// owner extracts the authenticated user ID, writing a 401 if the middleware
// did not run.
func (g *Gateway) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ac := auth.FromContext(r.Context())
	if ac == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return ac.UserID, true
}

func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// sendServiceError translates service and store errors into HTTP statuses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, "conversation name already exists")
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	summaries, err := g.service.List(r.Context(), ownerID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	items := make([]item, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, item{ID: s.ID, Name: s.Name})
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"conversations": items})
}

func (g *Gateway) handleListConversationsDetailed(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	details, err := g.service.ListDetailed(r.Context(), ownerID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	type item struct {
		Name      string `json:"name"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	items := make(map[string]item, len(details))
	for id, d := range details {
		items[id] = item{
			Name:      d.Name,
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"conversations": items})
}

func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	initial := make([]*store.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			g.sendJSONError(w, http.StatusBadRequest, "message content is required")
			return
		}
		role := m.Role
		if role == "" {
			role = "user"
		}
		initial = append(initial, &store.Message{Role: role, Content: m.Content})
	}

	conv, err := g.service.NewConversation(r.Context(), ownerID, req.Name, initial)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, toConversationResponse(conv))
}

func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	if err := g.service.Delete(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref"))); err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	limit, ok := g.queryInt(w, r, "limit")
	if !ok {
		return
	}
	page, ok := g.queryInt(w, r, "page")
	if !ok {
		return
	}

	messages, err := g.service.History(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), limit, page)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	items := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageResponse(m))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"messages": items})
}

// queryInt parses an optional non-negative integer query parameter.
func (g *Gateway) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return n, true
}

func (g *Gateway) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req appendMessageRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	msg, err := g.service.LogMessage(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), req.Role, req.Content)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (g *Gateway) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req updateMessageRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := g.service.UpdateMessage(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")),
		r.PathValue("id"), req.Content, ownerID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (g *Gateway) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	if err := g.service.DeleteMessage(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), r.PathValue("id")); err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (g *Gateway) handleUpdateMessageByContent(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req updateByContentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.OldContent == "" || req.NewContent == "" {
		g.sendJSONError(w, http.StatusBadRequest, "old_content and new_content are required")
		return
	}

	msg, err := g.service.UpdateMessageByContent(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")),
		req.OldContent, req.NewContent, ownerID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (g *Gateway) handleDeleteMessageByContent(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req deleteByContentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	if err := g.service.DeleteMessageByContent(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), req.Content); err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (g *Gateway) handleMessageFeedback(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	if err := g.service.MarkFeedback(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")),
		r.PathValue("id"), req.Received); err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (g *Gateway) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	name, err := g.service.Rename(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), req.Name)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (g *Gateway) handleForkConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req forkRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	fork, err := g.service.Fork(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), req.MessageID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, toConversationResponse(fork))
}

func (g *Gateway) handlePinConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.owner(w, r)
	if !ok {
		return
	}

	var req pinRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	if err := g.service.Pin(r.Context(), ownerID, conversation.ParseRef(r.PathValue("ref")), req.PinOrder); err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
