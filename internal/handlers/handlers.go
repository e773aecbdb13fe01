package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bulletin/internal/board"
	"bulletin/internal/middleware"

	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handler methods and their dependencies.
type Handler struct {
	store *board.Store
}

// NewHandler creates a new Handler backed by store.
func NewHandler(store *board.Store) *Handler {
	return &Handler{store: store}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a board error kind to an HTTP status.
func statusFor(kind board.Kind) int {
	switch kind {
	case board.KindInvalidHandle, board.KindInvalidIdentity,
		board.KindBodyEmpty, board.KindBodyTooLong,
		board.KindPageSizeZero, board.KindPageSizeTooLarge, board.KindInvalidPage,
		board.KindInvalidSetting, board.KindUnknownSetting,
		board.KindTooMany:
		return http.StatusBadRequest
	case board.KindNotFound, board.KindBucketNotFound,
		board.KindParentNotFound, board.KindProfileMissing:
		return http.StatusNotFound
	case board.KindNotAuthorized:
		return http.StatusForbidden
	case board.KindProfileRequired, board.KindProfileInactive,
		board.KindHandleTaken, board.KindAlreadyDeleted, board.KindNotAReply:
		return http.StatusConflict
	case board.KindCooldownActive:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Errors outside the board
// taxonomy are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := board.KindOf(err)
	status := statusFor(kind)
	resp := errorResponse{Error: string(kind), Message: err.Error()}

	if kind == "" {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Board operation failed")
		resp = errorResponse{Error: "internal", Message: "internal error"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// badRequest reports a malformed request that never reached the store.
func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: "bad_request", Message: msg}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any, entityName string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode " + entityName + " response")
	}
}

// decodeJSON decodes the request body into target, rejecting unknown fields.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// identity returns the acting identity set by the gateway.
func identity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(middleware.IdentityHeader))
}

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(r.PathValue(name), 10, 64)
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// queryOptions translates ?include_deleted=true into board query options.
func queryOptions(r *http.Request) []board.QueryOption {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted")); ok {
		return []board.QueryOption{board.IncludeDeleted()}
	}
	return nil
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ActiveTotal(r.Context()); err != nil {
		writeError(w, r, errors.Join(errors.New("ledger unavailable"), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "health")
}
