package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/review"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
)

type CaseHandler struct {
	cases     *service.CaseService
	lifecycle *service.LifecycleService
	reviews   *service.ReviewService
}

func NewCaseHandler(cases *service.CaseService, lifecycle *service.LifecycleService, reviews *service.ReviewService) *CaseHandler {
	return &CaseHandler{cases: cases, lifecycle: lifecycle, reviews: reviews}
}

type createCaseRequest struct {
	Description string   `json:"description" binding:"max=2000"`
	Symptoms    []string `json:"symptoms" binding:"max=50,dive,max=100"`
}

type attachImageRequest struct {
	StoragePath string `json:"storage_path" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"required"`
}

type addSymptomsRequest struct {
	Symptoms []string `json:"symptoms" binding:"required,min=1,max=50,dive,max=100"`
}

type reviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Note     string `json:"note"`
}

func (h *CaseHandler) Create(c *gin.Context) {
	var req createCaseRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.cases.CreateCase(c.Request.Context(), middleware.ClaimsFrom(c), &skincase.CreateCaseCommand{
		Description: req.Description,
		Symptoms:    req.Symptoms,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toCaseResponse(created))
}

func (h *CaseHandler) List(c *gin.Context) {
	page, err := h.cases.ListCases(c.Request.Context(), middleware.ClaimsFrom(c),
		parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedCasesResponse(page))
}

func (h *CaseHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	d, err := h.cases.GetCase(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toCaseDetailsResponse(d))
}

func (h *CaseHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.cases.DeleteCase(c.Request.Context(), middleware.ClaimsFrom(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CaseHandler) AttachImage(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req attachImageRequest
	if !bindJSON(c, &req) {
		return
	}

	f, err := h.cases.AttachImage(c.Request.Context(), middleware.ClaimsFrom(c), id, &skincase.AttachImageCommand{
		StoragePath: req.StoragePath,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, fileResponse{
		ID:          f.ID,
		StoragePath: f.StoragePath,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		CreatedAt:   f.CreatedAt,
	})
}

func (h *CaseHandler) AddSymptoms(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req addSymptomsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.cases.AddSymptoms(c.Request.Context(), middleware.ClaimsFrom(c), id, req.Symptoms); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Analyze runs inference synchronously; the response carries the
// prediction on success.
func (h *CaseHandler) Analyze(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	analyzed, err := h.lifecycle.AnalyzeCase(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toCaseResponse(analyzed))
}

func (h *CaseHandler) Predictions(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	ps, err := h.cases.ListPredictions(c.Request.Context(), middleware.ClaimsFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPredictionResponses(ps))
}

func (h *CaseHandler) Review(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}

	reviewed, err := h.reviews.ReviewCase(c.Request.Context(), middleware.ClaimsFrom(c), &review.SubmitReviewCommand{
		CaseID:   id,
		Decision: review.Decision(req.Decision),
		Note:     req.Note,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toCaseResponse(reviewed))
}
