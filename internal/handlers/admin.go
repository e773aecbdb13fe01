package handlers

import (
	"net/http"

	"bulletin/internal/board"
	"bulletin/internal/metrics"
)

type settingRequest struct {
	Value string `json:"value"`
}

// HandleSettingUpdate changes one board setting. Lowering the capacity
// evicts synchronously before the response is written.
func (h *Handler) HandleSettingUpdate(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := h.store.ApplySetting(r.Context(), identity(r), r.PathValue("name"), req.Value); err != nil {
		writeError(w, r, err)
		return
	}

	st, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st, "settings")
}

func (h *Handler) HandleSettingsGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st, "settings")
}

type adminStatsResponse struct {
	*board.Stats
	Overflow      uint64  `json:"overflow"`
	Subscribers   float64 `json:"subscribers"`
	EventsDropped float64 `json:"events_dropped"`
	EvictedTotal  float64 `json:"evicted_total"`
}

// HandleAdminStats reports ledger stats alongside this process's stream and
// eviction metrics.
func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	if admin := h.store.Admin(); admin == "" || identity(r) != admin {
		writeError(w, r, &board.Error{Kind: board.KindNotAuthorized, Msg: "administrator only"})
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminStatsResponse{
		Stats:         stats,
		Overflow:      stats.Overflow(),
		Subscribers:   metrics.GaugeValue(metrics.StreamSubscribers),
		EventsDropped: metrics.CounterValue(metrics.StreamDroppedTotal),
		EvictedTotal:  metrics.CounterValue(metrics.BoardEvictedTotal),
	}, "admin stats")
}
