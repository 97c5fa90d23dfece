package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/haeun-dev/registrar-api/internal/service"
	appErrors "github.com/haeun-dev/registrar-api/pkg/errors"
	"github.com/haeun-dev/registrar-api/pkg/response"
)

// ExportHandler exposes archived roster exports and their signed downloads.
type ExportHandler struct {
	exports *service.RosterExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.RosterExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Archive godoc
// @Summary Archive a roster export
// @Description Render the active roster to a file and return a signed download link
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param code path string true "Course code"
// @Param format query string false "Export format" Enums(csv, pdf)
// @Success 201 {object} response.Envelope
// @Router /courses/{code}/roster/exports [post]
func (h *ExportHandler) Archive(c *gin.Context) {
	result, err := h.exports.Generate(c.Request.Context(), c.Param("code"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an archived export
// @Description Stream a previously archived roster export; the signed token is the only credential
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} byte
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	file, contentType, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(file.Name())+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
