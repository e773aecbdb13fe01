package handlers

import (
	"net/http"
	"strconv"

	"bulletin/internal/board"
)

type createRecordRequest struct {
	Body     string `json:"body"`
	ParentID uint64 `json:"parent_id"`
}

// HandleRecordCreate posts a top-level record, or a reply when parent_id is set.
func (h *Handler) HandleRecordCreate(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	id, err := h.store.CreateRecord(r.Context(), identity(r), req.Body, req.ParentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.store.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/records/"+strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusCreated, rec, "record")
}

// HandleRecordDelete tombstones a record. Only its author or the administrator may.
func (h *Handler) HandleRecordDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	if err := h.store.DeleteRecord(r.Context(), identity(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRecordGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	rec, err := h.store.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, "record")
}

func (h *Handler) HandleReplies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	replies, err := h.store.RepliesOf(r.Context(), id, queryOptions(r)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replies, "replies")
}

func (h *Handler) HandleOriginal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid record id")
		return
	}
	rec, err := h.store.OriginalOf(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, "record")
}

// HandleLatest returns the newest live top-level records. Without ?n it
// returns as many as the board allows.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := queryInt(r, "n", st.MaxLatest)
	if err != nil {
		badRequest(w, "n must be an integer")
		return
	}
	records, err := h.store.Latest(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records, "latest")
}

// HandleFeed pages through live top-level records, newest first.
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 0)
	if err != nil {
		badRequest(w, "page must be an integer")
		return
	}
	size, err := queryInt(r, "size", st.MaxPageSize)
	if err != nil {
		badRequest(w, "size must be an integer")
		return
	}
	p, err := h.store.Paginate(r.Context(), page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p, "page")
}

func (h *Handler) HandleAuthorRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ByAuthor(r.Context(), r.PathValue("identity"), queryOptions(r)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records, "author records")
}

func (h *Handler) HandleBucketRecords(w http.ResponseWriter, r *http.Request) {
	bucket, err := pathID(r, "bucket")
	if err != nil {
		badRequest(w, "invalid bucket")
		return
	}
	records, err := h.store.ByBucket(r.Context(), bucket, queryOptions(r)...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records, "bucket records")
}

type statsResponse struct {
	*board.Stats
	Overflow uint64 `json:"overflow"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Overflow: stats.Overflow()}, "stats")
}
