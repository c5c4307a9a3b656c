package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/services"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

type SyncHandler struct {
	BaseHandler
	syncService services.SyncService
	validator   *validator.Validator
}

func NewSyncHandler(
	syncService services.SyncService,
	validator *validator.Validator,
	logger *slog.Logger,
) *SyncHandler {
	return &SyncHandler{
		BaseHandler: NewBaseHandler(logger),
		syncService: syncService,
		validator:   validator,
	}
}

// TriggerLessonSync starts (or joins) the sync of one lesson.
// @Summary Sync a lesson
// @Description Sends the lesson's offline attempts and retake to the LMS
// @Tags sync
// @Accept json
// @Produce json
// @Param id path int true "Lesson ID"
// @Param request body validator.SyncLessonRequest true "Sync options"
// @Success 200 {object} SuccessResponse{data=services.SyncResult}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /lessons/{id}/sync [post]
func (h *SyncHandler) TriggerLessonSync(c *gin.Context) {
	lessonID := h.parseLessonID(c)
	if lessonID == 0 {
		return
	}

	var req validator.SyncLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if verrs := h.validator.Validate(req); verrs != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: verrs,
		})
		return
	}

	h.LogRequest(c, "Syncing lesson", "site_id", req.SiteID, "lesson_id", lessonID)

	result, err := h.syncService.SyncLesson(c.Request.Context(), req.SiteID, lessonID, services.SyncOptions{
		IgnoreBlock: req.IgnoreBlock,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: result})
}

// GetSyncStatus reports the current state and last result for a lesson.
// @Summary Get sync status
// @Tags sync
// @Produce json
// @Param id path int true "Lesson ID"
// @Param site_id query string true "Site ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /lessons/{id}/sync [get]
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	lessonID := h.parseLessonID(c)
	if lessonID == 0 {
		return
	}
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "site_id is required",
		})
		return
	}

	last, err := h.syncService.LastSync(c.Request.Context(), siteID, lessonID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: gin.H{
		"state":     h.syncService.State(siteID, lessonID),
		"blocked":   h.syncService.IsBlocked(siteID, lessonID),
		"last_sync": last,
	}})
}

// TriggerSiteSync syncs every lesson with offline data, on one site when
// site_id is given or across every known site otherwise.
// @Summary Sync all lessons
// @Tags sync
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse{data=[]services.SyncResult}
// @Failure 400 {object} ErrorResponse
// @Router /sync [post]
func (h *SyncHandler) TriggerSiteSync(c *gin.Context) {
	var req struct {
		SiteID string `json:"site_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if req.SiteID == "" {
		h.LogRequest(c, "Syncing all sites")
		results, err := h.syncService.SyncAllSites(c.Request.Context())
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, SuccessResponse{Data: results})
		return
	}

	h.LogRequest(c, "Syncing all lessons", "site_id", req.SiteID)

	results, err := h.syncService.SyncAllLessons(c.Request.Context(), req.SiteID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: results})
}

func (h *SyncHandler) parseLessonID(c *gin.Context) int64 {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid lesson id",
		})
		return 0
	}
	return id
}

func (h *SyncHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var blocked *services.SyncBlockedError
	if errors.As(err, &blocked) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Sync is blocked for this lesson",
		})
		return
	}

	var prevented *services.PreventedAccessError
	if errors.As(err, &prevented) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: prevented.Message,
			Details: map[string]any{"reason": prevented.Reason},
		})
		return
	}

	var rejection *ws.BusinessRejection
	if errors.As(err, &rejection) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: rejection.Message,
			Details: map[string]any{"errorcode": rejection.ErrorCode},
		})
		return
	}

	if ws.IsTransportError(err) {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "The site could not be reached",
			Details: err.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, ws.ErrSiteNotConfigured):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Unknown site",
		})
	case errors.Is(err, services.ErrPasswordRequired):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "A lesson password is required",
		})
	case errors.Is(err, services.ErrLoginFailed):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "The stored lesson password was rejected",
		})
	case errors.Is(err, services.ErrLessonNotFound),
		repositories.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Lesson not found",
		})
	default:
		h.logger.Error("unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
