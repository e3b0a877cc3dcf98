package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/loomchat/loom/server/internal/api/respond"
	"github.com/loomchat/loom/server/internal/model"
	"github.com/loomchat/loom/server/internal/store"
)

// DirectoryHandler handles user, channel and DM channel management.
type DirectoryHandler struct {
	store store.Store
}

func NewDirectoryHandler(s store.Store) *DirectoryHandler {
	return &DirectoryHandler{store: s}
}

// CreateUser handles POST /api/users
func (h *DirectoryHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
		AvatarURL   string `json:"avatarUrl,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.UserID == "" || req.DisplayName == "" {
		respond.WriteBadRequest(w, "userId and displayName are required")
		return
	}

	user, err := h.store.Users().Create(r.Context(), &model.User{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{userId}
func (h *DirectoryHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	user, err := h.store.Users().Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, user)
}

// CreateChannel handles POST /api/channels
func (h *DirectoryHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID   string `json:"channelId,omitempty"`
		WorkspaceID string `json:"workspaceId"`
		Name        string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.WorkspaceID == "" || req.Name == "" {
		respond.WriteBadRequest(w, "workspaceId and name are required")
		return
	}
	if req.ChannelID == "" {
		req.ChannelID = uuid.New().String()
	}

	ch, err := h.store.Channels().Create(r.Context(), &model.Channel{
		ChannelID:   req.ChannelID,
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, ch)
}

// AddWorkspaceMember handles POST /api/workspaces/{workspaceId}/members
func (h *DirectoryHandler) AddWorkspaceMember(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["workspaceId"]
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.UserID == "" {
		respond.WriteBadRequest(w, "userId is required")
		return
	}

	if err := h.store.Channels().AddWorkspaceMember(r.Context(), workspaceID, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateDMChannel handles POST /api/dms
func (h *DirectoryHandler) CreateDMChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DMChannelID string   `json:"dmChannelId,omitempty"`
		MemberIDs   []string `json:"memberIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if len(req.MemberIDs) < 2 {
		respond.WriteBadRequest(w, "at least two memberIds are required")
		return
	}
	if req.DMChannelID == "" {
		req.DMChannelID = uuid.New().String()
	}

	dm, err := h.store.DMChannels().Create(r.Context(), &model.DMChannel{
		DMChannelID: req.DMChannelID,
	}, req.MemberIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, dm)
}
