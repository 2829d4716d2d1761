package handlers

import (
	"strconv"
	"time"

	"github.com/debatehub/backend/internal/services"
	"github.com/debatehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// ProviderUsageHandler reports how each AI provider has been behaving.
type ProviderUsageHandler struct {
	usageService *services.ProviderUsageService
	providers    []string
}

func NewProviderUsageHandler(usageService *services.ProviderUsageService, providers []string) *ProviderUsageHandler {
	return &ProviderUsageHandler{usageService: usageService, providers: providers}
}

// GetStats returns per-provider call statistics.
// GET /api/moderation/providers?days=7
func (h *ProviderUsageHandler) GetStats(c *gin.Context) {
	var since *time.Time
	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days <= 0 {
			response.BadRequest(c, "days must be a positive integer")
			return
		}
		t := time.Now().AddDate(0, 0, -days)
		since = &t
	}

	usage, err := h.usageService.Breakdown(since)
	if err != nil {
		response.ServerError(c, "failed to get provider usage: "+err.Error())
		return
	}

	response.Success(c, gin.H{
		"configured": h.providers,
		"usage":      usage,
	})
}
