package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veridocai/veridoc-backend/internal/http/response"
	"github.com/veridocai/veridoc-backend/internal/ingestion/pipeline"
	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/services"
)

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
}

func NewDocumentHandler(log *logger.Logger, documents services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		documents: documents,
	}
}

// UploadDocument accepts one multipart file and returns as soon as the
// document row exists; processing continues in the background and is
// observable through the document status.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), caseID, services.DocumentUpload{
		OriginalName: fileHeader.Filename,
		SizeBytes:    fileHeader.Size,
		Reader:       f,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "case_not_found", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "upload_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_document_failed", err)
		return
	}
	response.RespondOK(c, doc)
}

func (h *DocumentHandler) ListCaseDocuments(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_case_id", err)
		return
	}
	docs, err := h.documents.ListByCase(c.Request.Context(), nil, caseID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) ListDocumentChunks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	chunks, err := h.documents.ListChunks(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_chunks_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chunks": chunks})
}

func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.documents.Reprocess(c.Request.Context(), id); err != nil {
		var conflict *pipeline.ReprocessConflictError
		if errors.As(err, &conflict) {
			response.RespondError(c, http.StatusConflict, "document_processing", err)
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "reprocess_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"reprocessing": id})
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "delete_document_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}
