package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/services"
	"github.com/rs/zerolog/log"
)

// PostHandler handles HTTP requests for the caller's posts.
type PostHandler struct {
	service      services.PostServiceProvider
	maxBodyBytes int64
}

// NewPostHandler creates a new PostHandler. Request bodies larger than
// maxBodyBytes are rejected before decoding.
func NewPostHandler(service services.PostServiceProvider, maxBodyBytes int64) *PostHandler {
	return &PostHandler{service: service, maxBodyBytes: maxBodyBytes}
}

// CreatePostPayload is the body of a create request.
type CreatePostPayload struct {
	Text string `json:"text"`
}

// Create stores a new post and returns its id.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var payload CreatePostPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", decodeStatus(err))
		return
	}

	id, err := h.service.CreatePost(r.Context(), auth.TokenFromContext(r.Context()), payload.Text)
	if err != nil {
		writeServiceError(w, err, "Failed to create post")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List returns every post the caller owns.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListPosts(r.Context(), auth.TokenFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "Failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// Delete removes one of the caller's posts.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeletePost(r.Context(), auth.TokenFromContext(r.Context()), id); err != nil {
		log.Debug().Err(err).Str("post_id", id).Msg("Delete post rejected")
		writeServiceError(w, err, "Failed to delete post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}
