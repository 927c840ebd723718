package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/domain/skincase"
)

type caseResponse struct {
	ID                 uuid.UUID          `json:"id"`
	OwnerID            uuid.UUID          `json:"owner_id"`
	Description        string             `json:"description"`
	Status             skincase.Status    `json:"status"`
	AssignedDoctorID   *uuid.UUID         `json:"assigned_doctor_id,omitempty"`
	AIPrimaryLabel     string             `json:"ai_primary_label,omitempty"`
	AIConfidence       *float64           `json:"ai_confidence,omitempty"`
	AISecondaryLabels  map[string]float64 `json:"ai_secondary_labels,omitempty"`
	SeverityScore      *float64           `json:"severity_score,omitempty"`
	RiskLevel          skincase.RiskLevel `json:"risk_level,omitempty"`
	Reviewed           bool               `json:"reviewed"`
	ReviewedByDoctorID *uuid.UUID         `json:"reviewed_by_doctor_id,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewed_at,omitempty"`
	RetryCount         int                `json:"retry_count"`
	LastFailureReason  string             `json:"last_failure_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toCaseResponse(c *skincase.Case) caseResponse {
	return caseResponse{
		ID:                 c.ID,
		OwnerID:            c.OwnerID,
		Description:        c.Description,
		Status:             c.Status,
		AssignedDoctorID:   c.AssignedDoctorID,
		AIPrimaryLabel:     c.AIPrimaryLabel,
		AIConfidence:       c.AIConfidence,
		AISecondaryLabels:  c.AISecondaryLabels,
		SeverityScore:      c.SeverityScore,
		RiskLevel:          c.RiskLevel,
		Reviewed:           c.Reviewed,
		ReviewedByDoctorID: c.ReviewedByDoctorID,
		ReviewedAt:         c.ReviewedAt,
		RetryCount:         c.RetryCount,
		LastFailureReason:  c.LastFailureReason,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

type pagedCasesResponse struct {
	Cases      []caseResponse `json:"cases"`
	TotalCount int64          `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

func toPagedCasesResponse(p *skincase.PagedCases) pagedCasesResponse {
	out := pagedCasesResponse{
		Cases:      make([]caseResponse, 0, len(p.Cases)),
		TotalCount: p.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
	for _, c := range p.Cases {
		out.Cases = append(out.Cases, toCaseResponse(c))
	}
	return out
}

type fileResponse struct {
	ID          uuid.UUID `json:"id"`
	StoragePath string    `json:"storage_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

type predictionResponse struct {
	ID              uuid.UUID          `json:"id"`
	ModelVersion    string             `json:"model_version"`
	PrimaryLabel    string             `json:"primary_label"`
	Confidence      float64            `json:"confidence"`
	SecondaryLabels map[string]float64 `json:"secondary_labels,omitempty"`
	SeverityScore   float64            `json:"severity_score"`
	RiskLevel       skincase.RiskLevel `json:"risk_level"`
	CreatedAt       time.Time          `json:"created_at"`
}

func toPredictionResponses(ps []*skincase.Prediction) []predictionResponse {
	out := make([]predictionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, predictionResponse{
			ID:              p.ID,
			ModelVersion:    p.ModelVersion,
			PrimaryLabel:    p.PrimaryLabel,
			Confidence:      p.Confidence,
			SecondaryLabels: p.SecondaryLabels,
			SeverityScore:   p.SeverityScore,
			RiskLevel:       p.RiskLevel,
			CreatedAt:       p.CreatedAt,
		})
	}
	return out
}

type caseDetailsResponse struct {
	caseResponse
	Images      []fileResponse       `json:"images"`
	Symptoms    []string             `json:"symptoms"`
	Predictions []predictionResponse `json:"predictions"`
}

func toCaseDetailsResponse(d *skincase.Details) caseDetailsResponse {
	out := caseDetailsResponse{
		caseResponse: toCaseResponse(d.Case),
		Images:       make([]fileResponse, 0, len(d.Files)),
		Symptoms:     make([]string, 0, len(d.Symptoms)),
		Predictions:  toPredictionResponses(d.Predictions),
	}
	for _, f := range d.Files {
		out.Images = append(out.Images, fileResponse{
			ID:          f.ID,
			StoragePath: f.StoragePath,
			ContentType: f.ContentType,
			SizeBytes:   f.SizeBytes,
			CreatedAt:   f.CreatedAt,
		})
	}
	for _, s := range d.Symptoms {
		out.Symptoms = append(out.Symptoms, s.SymptomCode)
	}
	return out
}
