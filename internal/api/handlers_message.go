package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/loomchat/loom/server/internal/api/respond"
	"github.com/loomchat/loom/server/internal/distribute"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/unread"
)

// MessageHandler handles message creation and read state.
type MessageHandler struct {
	store  store.Store
	dist   *distribute.Distributor
	unread *unread.Service
}

func NewMessageHandler(s store.Store, dist *distribute.Distributor, u *unread.Service) *MessageHandler {
	return &MessageHandler{store: s, dist: dist, unread: u}
}

// CreateMessage handles POST /api/messages. The message row is persisted
// first, then the distribution pipeline runs: unread counters and thread
// metadata synchronously, embedding enqueue and live fan-out in the
// background.
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID        string   `json:"channelId,omitempty"`
		DMChannelID      string   `json:"dmChannelId,omitempty"`
		SenderID         string   `json:"senderId"`
		Content          string   `json:"content"`
		ParentMessageID  *string  `json:"parentMessageId,omitempty"`
		MentionedUserIDs []string `json:"mentionedUserIds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}

	conv := model.ConversationRef{ChannelID: req.ChannelID, DMChannelID: req.DMChannelID}
	if !conv.Valid() {
		respond.WriteBadRequest(w, "exactly one of channelId or dmChannelId is required")
		return
	}
	if req.SenderID == "" {
		respond.WriteBadRequest(w, "senderId is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respond.WriteBadRequest(w, "content is required")
		return
	}

	msg := &model.Message{
		MessageID:       uuid.New().String(),
		Conversation:    conv,
		SenderID:        req.SenderID,
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
	}
	created, err := h.store.Messages().Create(r.Context(), msg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.dist.Distribute(r.Context(), created, req.MentionedUserIDs); err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, created)
}

// GetMessage handles GET /api/messages/{messageId}
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]
	msg, err := h.store.Messages().Get(r.Context(), messageID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, msg)
}

// MarkConversationRead handles POST /api/users/{userId}/reads
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req struct {
		ChannelID   string `json:"channelId,omitempty"`
		DMChannelID string `json:"dmChannelId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	conv := model.ConversationRef{ChannelID: req.ChannelID, DMChannelID: req.DMChannelID}
	if !conv.Valid() {
		respond.WriteBadRequest(w, "exactly one of channelId or dmChannelId is required")
		return
	}

	if err := h.unread.OnConversationRead(r.Context(), userID, conv); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUnread handles GET /api/users/{userId}/unread?channelId=|dmChannelId=
func (h *MessageHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	conv := model.ConversationRef{
		ChannelID:   r.URL.Query().Get("channelId"),
		DMChannelID: r.URL.Query().Get("dmChannelId"),
	}
	if !conv.Valid() {
		respond.WriteBadRequest(w, "exactly one of channelId or dmChannelId is required")
		return
	}

	counter, err := h.unread.Counter(r.Context(), userID, conv)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, counter)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNoConversation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteError(w, http.StatusConflict, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
