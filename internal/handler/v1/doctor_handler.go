package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
)

type DoctorHandler struct {
	assignments *service.AssignmentService
}

func NewDoctorHandler(assignments *service.AssignmentService) *DoctorHandler {
	return &DoctorHandler{assignments: assignments}
}

// ClaimNext returns 204 when there is nothing to claim or another doctor won
// the race; clients simply poll again.
func (h *DoctorHandler) ClaimNext(c *gin.Context) {
	claimed, ok, err := h.assignments.ClaimNextCase(c.Request.Context(), middleware.ClaimsFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	respondOK(c, toCaseResponse(claimed))
}

func (h *DoctorHandler) ListCases(c *gin.Context) {
	page, err := h.assignments.ListDoctorCases(c.Request.Context(), middleware.ClaimsFrom(c),
		parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedCasesResponse(page))
}
