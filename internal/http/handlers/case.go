package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/http/response"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/services"
)

type CaseHandler struct {
	log   *logger.Logger
	cases services.CaseService
}

func NewCaseHandler(log *logger.Logger, cases services.CaseService) *CaseHandler {
	return &CaseHandler{
		log:   log.With("handler", "CaseHandler"),
		cases: cases,
	}
}

type createCaseRequest struct {
	Name        string `json:"name" binding:"required"`
	CaseNumber  string `json:"case_number"`
	Description string `json:"description"`
}

func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	created, err := h.cases.Create(c.Request.Context(), nil, req.Name, req.CaseNumber, req.Description)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "create_case_failed", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *CaseHandler) GetCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}
	found, err := h.cases.Get(c.Request.Context(), nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "case_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_case_failed", err)
		return
	}
	response.RespondOK(c, found)
}

func (h *CaseHandler) ListCases(c *gin.Context) {
	cases, err := h.cases.List(c.Request.Context(), nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_cases_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"cases": cases})
}

func (h *CaseHandler) DeleteCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}
	if err := h.cases.Delete(c.Request.Context(), nil, id); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_case_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}
