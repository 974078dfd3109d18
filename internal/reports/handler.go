package reports

import (
	"net/http"
	"strconv"
	"time"

	"sales_enforcer_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) HandleScoreboard(c *gin.Context) {
	board, err := h.svc.Scoreboard(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, board)
}

func (h *Handler) HandleWeeklyReport(c *gin.Context) {
	userID, ok := optionalIntQuery(c, "user_id")
	if !ok {
		return
	}
	report, err := h.svc.WeeklyReport(c.Request.Context(), userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) HandleDueActivities(c *gin.Context) {
	userID, ok := optionalIntQuery(c, "user_id")
	if !ok {
		return
	}
	start, ok := optionalDateQuery(c, "start_date")
	if !ok {
		return
	}
	end, ok := optionalDateQuery(c, "end_date")
	if !ok {
		return
	}

	items, err := h.svc.DueActivities(c.Request.Context(), userID, start, end)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, items)
}

func (h *Handler) HandleUserHistory(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil || userID <= 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}
	limit, ok := optionalIntQuery(c, "limit")
	if !ok {
		return
	}

	entries, err := h.svc.UserHistory(c.Request.Context(), userID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, entries)
}

func optionalIntQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+key, nil)
		return 0, false
	}
	return n, true
}

func optionalDateQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+key+", want YYYY-MM-DD", nil)
		return time.Time{}, false
	}
	return t, true
}
