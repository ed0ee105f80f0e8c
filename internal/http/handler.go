package http

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mvahmadali/CrashAnalytix/internal/config"
	"github.com/mvahmadali/CrashAnalytix/internal/service"
)

type Handler struct {
	accidentService *service.AccidentService
	config          *config.Config
	log             zerolog.Logger
}

func NewHandler(
	accidentService *service.AccidentService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		accidentService: accidentService,
		config:          cfg,
		log:             log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/accidents/check", h.checkAccident)
		public.POST("/plates/check", h.checkPlates)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/accidents", h.listAccidents(successResponse))
		protected.GET("/accidents/:id", h.getAccident(successResponse))
		protected.GET("/plates", h.listPlates)
		protected.GET("/collages/:name", h.getCollage)
	}

	// Routes used by the existing web frontend, unwrapped payloads
	r.POST("/predict", h.checkAccident)
	r.POST("/detect-license-plate", h.checkPlates)
	legacy := r.Group("")
	legacy.Use(authMiddleware)
	{
		legacy.GET("/accidents", h.listAccidents(rawResponse))
		legacy.GET("/accidents/:id", h.getAccident(rawResponse))
		legacy.GET("/collages/:name", h.getCollage)
	}
}

func (h *Handler) checkAccident(c *gin.Context) {
	file, header, ok := h.uploadedFile(c)
	if !ok {
		return
	}
	defer file.Close()

	resp, err := h.accidentService.CheckVideo(c.Request.Context(), file, header.Filename)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) checkPlates(c *gin.Context) {
	file, header, ok := h.uploadedFile(c)
	if !ok {
		return
	}
	defer file.Close()

	resp, err := h.accidentService.CheckPlates(c.Request.Context(), file, header.Filename)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) uploadedFile(c *gin.Context) (multipart.File, *multipart.FileHeader, bool) {
	if limit := h.maxUploadBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("uploaded file is too large"))
			return nil, nil, false
		}
		c.JSON(http.StatusBadRequest, errorResponse("No file uploaded"))
		return nil, nil, false
	}

	file, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("failed to open uploaded file")
		c.JSON(http.StatusBadRequest, errorResponse("failed to read uploaded file"))
		return nil, nil, false
	}
	return file, header, true
}

func (h *Handler) maxUploadBytes() int64 {
	if h.config == nil {
		return 0
	}
	return h.config.Server.MaxUploadMB << 20
}

func (h *Handler) listAccidents(render func(interface{}) interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("sort_by_severity")
		if raw == "" {
			raw = c.Query("sortBySeverity")
		}

		query := service.AccidentQuery{}
		if raw = strings.TrimSpace(raw); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse("sort_by_severity must be true or false"))
				return
			}
			query.SortBySeverity = parsed
		}

		if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
			query.Plate = &plate
		}
		if f := strings.TrimSpace(c.Query("from")); f != "" {
			query.From = &f
		}
		if t := strings.TrimSpace(c.Query("to")); t != "" {
			query.To = &t
		}

		if l := c.Query("limit"); l != "" {
			if parsed, err := parseInt(l); err == nil && parsed > 0 {
				query.Limit = parsed
			}
		}
		if o := c.Query("offset"); o != "" {
			if parsed, err := parseInt(o); err == nil && parsed >= 0 {
				query.Offset = parsed
			}
		}

		records, err := h.accidentService.FindAccidents(c.Request.Context(), query)
		if err != nil {
			h.handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, render(records))
	}
}

func (h *Handler) listPlates(c *gin.Context) {
	plateQuery := strings.TrimSpace(c.Query("plate"))
	if plateQuery == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plate parameter is required"))
		return
	}

	plates, err := h.accidentService.FindPlates(c.Request.Context(), plateQuery)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(plates))
}

func (h *Handler) getAccident(render func(interface{}) interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.accidentService.GetAccident(c.Request.Context(), c.Param("id"))
		if err != nil {
			h.handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, render(record))
	}
}

func (h *Handler) getCollage(c *gin.Context) {
	path, err := h.accidentService.CollagePath(c.Param("name"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			// Hide whether anything exists outside the collage directory.
			c.JSON(http.StatusNotFound, errorResponse("collage not found"))
			return
		}
		h.handleError(c, err)
		return
	}

	c.File(path)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"store_backend": h.accidentService.StoreBackend(),
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("request timed out")
		c.JSON(http.StatusGatewayTimeout, errorResponse("processing timed out"))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) interface{} {
	return gin.H{
		"data": data,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func rawResponse(data interface{}) interface{} {
	return data
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
