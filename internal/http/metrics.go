package httpapi

import (
	"net/http"
	"strconv"

	"videoportal-backend-go/internal/services"

	"github.com/gorilla/websocket"
)

type MetricsHistoryResponse struct {
	Items []services.MetricSample `json:"items"`
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func (s *Server) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 120)
	if limit > 500 {
		limit = 500
	}
	items, err := services.LatestMetrics(r.Context(), s.DB, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MetricsHistoryResponse{Items: items})
}

// MetricsSocket streams samples to superusers. The access token is read from
// the token query parameter.
func (s *Server) MetricsSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := authenticate(r.Context(), s.DB, s.Tokens, r.URL.Query().Get("token"))
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Authentication failed", Code: services.CodeUnauthorized})
		return
	}
	if !user.IsSuperuser {
		writeServiceError(w, r, services.ErrPermissionDenied)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.MetricsHub.Add(conn)
	defer func() {
		s.MetricsHub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
