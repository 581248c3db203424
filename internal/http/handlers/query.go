package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/http/response"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/rag"
	"github.com/veridocai/veridoc-backend/internal/services"
)

type QueryHandler struct {
	log     *logger.Logger
	queries services.QueryService
}

func NewQueryHandler(log *logger.Logger, queries services.QueryService) *QueryHandler {
	return &QueryHandler{
		log:     log.With("handler", "QueryHandler"),
		queries: queries,
	}
}

type askRequest struct {
	Question     string `json:"question" binding:"required"`
	TopK         int    `json:"top_k"`
	MaxCitations int    `json:"max_citations"`
}

func (h *QueryHandler) AskQuestion(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	out, err := h.queries.Ask(c.Request.Context(), services.AskInput{
		CaseID:       caseID,
		Question:     req.Question,
		TopK:         req.TopK,
		MaxCitations: req.MaxCitations,
	})
	if err != nil {
		var unavailable *rag.RetrievalUnavailableError
		if errors.As(err, &unavailable) {
			response.RespondError(c, http.StatusServiceUnavailable, "retrieval_unavailable", err)
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "case_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "query_failed", err)
		return
	}
	response.RespondOK(c, out)
}

func (h *QueryHandler) ListCaseQueries(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	rows, err := h.queries.History(c.Request.Context(), nil, caseID, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_queries_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"queries": rows})
}
