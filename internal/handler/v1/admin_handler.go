package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/assignment"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
)

type AdminHandler struct {
	cases       *service.CaseService
	assignments *service.AssignmentService
}

func NewAdminHandler(cases *service.CaseService, assignments *service.AssignmentService) *AdminHandler {
	return &AdminHandler{cases: cases, assignments: assignments}
}

type assignRequest struct {
	DoctorID string `json:"doctor_id" binding:"required,uuid"`
	Reason   string `json:"reason" binding:"max=500"`
}

func (h *AdminHandler) Assign(c *gin.Context) {
	cmd, ok := h.bindAssign(c)
	if !ok {
		return
	}
	assigned, err := h.assignments.AssignCase(c.Request.Context(), middleware.ClaimsFrom(c), cmd)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toCaseResponse(assigned))
}

func (h *AdminHandler) Reassign(c *gin.Context) {
	cmd, ok := h.bindAssign(c)
	if !ok {
		return
	}
	reassigned, err := h.assignments.ReassignCase(c.Request.Context(), middleware.ClaimsFrom(c), cmd)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toCaseResponse(reassigned))
}

// FailedCases lists cases that exhausted their analysis retries, oldest first.
func (h *AdminHandler) FailedCases(c *gin.Context) {
	page, err := h.cases.ListFailedCases(c.Request.Context(), middleware.ClaimsFrom(c),
		parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedCasesResponse(page))
}

func (h *AdminHandler) bindAssign(c *gin.Context) (*assignment.AssignCommand, bool) {
	caseID, ok := parseUUID(c, "id")
	if !ok {
		return nil, false
	}
	var req assignRequest
	if !bindJSON(c, &req) {
		return nil, false
	}
	return &assignment.AssignCommand{
		CaseID:   caseID,
		DoctorID: uuid.MustParse(req.DoctorID),
		Reason:   req.Reason,
	}, true
}
