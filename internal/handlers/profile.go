package handlers

import (
	"net/http"

	"bulletin/internal/board"
)

type claimHandleRequest struct {
	Handle    string `json:"handle"`
	AvatarRef string `json:"avatar_ref"`
}

type avatarRequest struct {
	AvatarRef string `json:"avatar_ref"`
}

type handleResponse struct {
	Handle   string `json:"handle"`
	Identity string `json:"identity"`
}

// HandleProfileClaim creates the caller's profile or changes its handle.
func (h *Handler) HandleProfileClaim(w http.ResponseWriter, r *http.Request) {
	var req claimHandleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	p, err := h.store.ClaimHandle(r.Context(), identity(r), req.Handle, req.AvatarRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p, "profile")
}

func (h *Handler) HandleAvatarUpdate(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	p, err := h.store.UpdateAvatar(r.Context(), identity(r), req.AvatarRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p, "profile")
}

// HandleProfileDeactivate releases the caller's handle. Their records stay.
func (h *Handler) HandleProfileDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Deactivate(r.Context(), identity(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleProfileGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProfile(r.Context(), r.PathValue("identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p, "profile")
}

func (h *Handler) HandleHandleLookup(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	id, found, err := h.store.HandleToIdentity(r.Context(), handle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, &board.Error{Kind: board.KindNotFound, Msg: "no active profile holds handle " + handle})
		return
	}
	writeJSON(w, http.StatusOK, handleResponse{Handle: handle, Identity: id}, "handle")
}
