package handlers

import (
	"errors"
	"net/http"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
)

// ProfileHandler serves the authenticated user's profile
type ProfileHandler struct {
	userCollection db.UserCollection
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(userCollection db.UserCollection) *ProfileHandler {
	return &ProfileHandler{
		userCollection: userCollection,
	}
}

// GetProfile returns the current user's profile. Users without a stored
// profile get the identity carried by their token.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), string(viewer.ID))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusOK, viewer)
			return
		}
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
