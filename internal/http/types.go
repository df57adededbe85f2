package http

import (
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

// TextRequest is the body of POST /api/v1/estimate and /api/v1/extract.
type TextRequest struct {
	Text        string `json:"text"`
	MaxUseCases int    `json:"max_use_cases,omitempty"`
}

// DocumentRequest is the JSON body of a document submission. Multipart
// uploads carry the same fields as form values plus a "file" part.
type DocumentRequest struct {
	Text           string `json:"text" form:"text"`
	ProjectContext string `json:"project_context" form:"project_context"`
	Domain         string `json:"domain" form:"domain"`
	Filename       string `json:"filename" form:"filename"`
	MaxUseCases    int    `json:"max_use_cases" form:"max_use_cases"`
}

// SessionRequest is the body of POST /api/v1/sessions.
type SessionRequest struct {
	ProjectContext string `json:"project_context"`
	Domain         string `json:"domain"`
	Title          string `json:"title"`
}

// RenameRequest is the body of PATCH /api/v1/sessions/:id.
type RenameRequest struct {
	Title string `json:"title"`
}

// SessionResponse is a session with the size of its use case list.
type SessionResponse struct {
	*session.Session
	UseCaseCount int `json:"use_case_count"`
}

// SessionsResponse is the body of GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []*session.Session `json:"sessions"`
}

// HistoryResponse is the body of GET /api/v1/sessions/:id/history.
type HistoryResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []session.Message `json:"messages"`
}

// UseCasesResponse is the body of GET /api/v1/sessions/:id/use-cases.
type UseCasesResponse struct {
	SessionID string                   `json:"session_id"`
	UseCases  []*session.StoredUseCase `json:"use_cases"`
}

// QueryRequest is the body of POST /api/v1/sessions/:id/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// RefineRequest is the body of POST /api/v1/use-cases/:id/refine.
type RefineRequest struct {
	RefinementType string `json:"refinement_type"`
}
