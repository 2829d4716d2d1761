package handlers

import (
	"errors"
	"strconv"

	"github.com/debatehub/backend/internal/middleware"
	"github.com/debatehub/backend/internal/services"
	"github.com/debatehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// ModerationHandler exposes the review workflow and its metrics.
type ModerationHandler struct {
	moderation *services.ModerationService
	stats      *services.ModerationStatsService
	queue      services.TaskQueue
}

func NewModerationHandler(moderation *services.ModerationService, stats *services.ModerationStatsService, queue services.TaskQueue) *ModerationHandler {
	return &ModerationHandler{
		moderation: moderation,
		stats:      stats,
		queue:      queue,
	}
}

// Analyze moderates content synchronously and returns the stored record.
// POST /api/moderation/analyze
func (h *ModerationHandler) Analyze(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.SubmitterID == "" {
		req.SubmitterID = middleware.GetUserID(c)
	}

	record, err := h.moderation.AnalyzeAndStore(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, moderationError(err))
		return
	}

	response.Created(c, record)
}

// Submit queues content for background moderation.
// POST /api/moderation/submit
func (h *ModerationHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.SubmitterID == "" {
		req.SubmitterID = middleware.GetUserID(c)
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), &services.SubmissionTask{
		Title:       req.Title,
		Content:     req.Content,
		ContentRef:  req.ContentRef,
		SubmitterID: req.SubmitterID,
	})
	if err != nil {
		response.ServerError(c, "failed to queue submission: "+err.Error())
		return
	}

	response.Accepted(c, gin.H{
		"task_id": taskID,
		"async":   h.queue.IsAsync(),
	})
}

// Queue lists records, optionally filtered by status and risk level.
// GET /api/moderation/queue
func (h *ModerationHandler) Queue(c *gin.Context) {
	var filter services.QueueFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, limit := pageParams(c)

	result, err := h.moderation.ListQueue(c.Request.Context(), filter, page, limit)
	if err != nil {
		response.Error(c, moderationError(err))
		return
	}

	response.Page(c, result.Total, result.Page, result.Limit, result.Items)
}

// Flagged lists records awaiting a human decision.
// GET /api/moderation/flagged
func (h *ModerationHandler) Flagged(c *gin.Context) {
	page, limit := pageParams(c)

	result, err := h.moderation.ListFlagged(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, moderationError(err))
		return
	}

	response.Page(c, result.Total, result.Page, result.Limit, result.Items)
}

// Get returns one record.
// GET /api/moderation/:id
func (h *ModerationHandler) Get(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	record, err := h.moderation.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, moderationError(err))
		return
	}

	response.Success(c, record)
}

// Review applies a moderator decision. The reviewer comes from the token.
// PUT /api/moderation/:id/review
func (h *ModerationHandler) Review(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	var req services.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ReviewerID = middleware.GetUserID(c)
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	record, err := h.moderation.ManualReview(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, moderationError(err))
		return
	}

	response.Success(c, record)
}

// Stats returns the current record distribution.
// GET /api/moderation/stats
func (h *ModerationHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.ServerError(c, "failed to get moderation stats: "+err.Error())
		return
	}
	response.Success(c, stats)
}

// Accuracy returns agreement between moderators and the AI.
// GET /api/moderation/accuracy
func (h *ModerationHandler) Accuracy(c *gin.Context) {
	stats, err := h.stats.Accuracy(c.Request.Context())
	if err != nil {
		response.ServerError(c, "failed to get accuracy stats: "+err.Error())
		return
	}
	response.Success(c, stats)
}

func recordID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid moderation record id")
		return 0, false
	}
	return uint(id), true
}

// pageParams reads page and limit; clamping happens in the service.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return page, limit
}

func moderationError(err error) error {
	switch {
	case errors.Is(err, services.ErrRecordNotFound):
		return response.NewNotFound("moderation record not found").Wrap(err)
	case errors.Is(err, services.ErrInvalidStatus), errors.Is(err, services.ErrInvalidRiskLevel):
		return response.NewBadRequest(err.Error()).Wrap(err)
	case errors.Is(err, services.ErrVersionConflict):
		return response.NewConflict("record is being reviewed by someone else, try again").Wrap(err)
	}
	return response.NewServerError("moderation failed").Wrap(err)
}
