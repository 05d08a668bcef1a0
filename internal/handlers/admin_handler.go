package handlers

import (
	"net/http"
	"strconv"

	"ticket-escrow/internal/contract"
	"ticket-escrow/internal/notify"
	"ticket-escrow/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const maxNotificationPage = 500

// AdminHandler serves operational views: health, the notification log and a
// contract summary. redis and stream may be nil when running in memory.
type AdminHandler struct {
	contract *contract.Contract
	redis    *redis.Client
	stream   *notify.RedisStream
}

func NewAdminHandler(c *contract.Contract, redisClient *redis.Client, stream *notify.RedisStream) *AdminHandler {
	return &AdminHandler{
		contract: c,
		redis:    redisClient,
		stream:   stream,
	}
}

func (h *AdminHandler) Health(e *core.RequestEvent) error {
	if h.redis != nil {
		if err := utils.RedisHealthCheck(h.redis); err != nil {
			return e.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// GetNotifications lists the newest entries of the notification stream.
func (h *AdminHandler) GetNotifications(e *core.RequestEvent) error {
	if h.stream == nil {
		return apis.NewNotFoundError("Notification log is not enabled", nil)
	}

	count := int64(50)
	if raw := e.Request.URL.Query().Get("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return apis.NewBadRequestError("Invalid count", err)
		}
		count = min(n, maxNotificationPage)
	}

	notes, err := h.stream.Recent(e.Request.Context(), count)
	if err != nil {
		return apis.NewInternalServerError("Failed to read notifications", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"stream":        h.stream.Stream(),
		"notifications": notes,
	})
}

// GetDashboard summarizes the instance: admin, fee settings and log size.
func (h *AdminHandler) GetDashboard(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	admin, err := h.contract.GetAdmin(ctx)
	if err != nil {
		return e.JSON(http.StatusOK, map[string]any{"initialized": false})
	}
	fees, err := h.contract.FeeState(ctx)
	if err != nil {
		return apis.NewInternalServerError("Failed to read platform fees", err)
	}

	data := map[string]any{
		"initialized":      true,
		"admin":            admin,
		"fee_bps":          fees.FeeBps,
		"platform_balance": fees.Balance,
	}
	if h.stream != nil {
		if n, err := h.stream.Redis.XLen(ctx, h.stream.Stream()).Result(); err == nil {
			data["notifications"] = n
		}
	}
	return e.JSON(http.StatusOK, data)
}
