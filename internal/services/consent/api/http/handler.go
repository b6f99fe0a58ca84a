// Package http exposes the consent service over a JSON HTTP API.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pmyapp/accord/internal/consent/contract"
	"github.com/pmyapp/accord/internal/consent/flow"
	apperrors "github.com/pmyapp/accord/internal/platform/errors"
	"github.com/pmyapp/accord/internal/platform/httpx"
	"github.com/pmyapp/accord/internal/services/consent/domain"
)

// Handler serves the consent service HTTP API.
type Handler struct {
	service *domain.Service
}

// NewHandler creates an HTTP handler over the consent service.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

type contractResponse struct {
	ID              string                    `json:"id"`
	OwnerUserID     string                    `json:"owner_user_id"`
	EncounterType   string                    `json:"encounter_type"`
	Jurisdiction    flow.Jurisdiction         `json:"jurisdiction"`
	Parties         []string                  `json:"parties"`
	Acts            map[string]flow.ActChoice `json:"acts,omitempty"`
	StartTime       *time.Time                `json:"start_time,omitempty"`
	EndTime         *time.Time                `json:"end_time,omitempty"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
	Method          flow.Method               `json:"method,omitempty"`
	Summary         string                    `json:"summary"`
	Status          contract.Status           `json:"status"`
	IsCollaborative bool                      `json:"is_collaborative"`
	RevokedBy       string                    `json:"revoked_by,omitempty"`
	RevokedAt       *time.Time                `json:"revoked_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func toContractResponse(c contract.Contract) contractResponse {
	return contractResponse{
		ID:              c.ID,
		OwnerUserID:     c.OwnerUserID,
		EncounterType:   c.EncounterType,
		Jurisdiction:    c.Jurisdiction,
		Parties:         c.Parties,
		Acts:            c.Acts,
		StartTime:       c.StartTime,
		EndTime:         c.EndTime(),
		DurationMinutes: c.DurationMinutes,
		Method:          c.Method,
		Summary:         c.Summary,
		Status:          c.Status,
		IsCollaborative: c.IsCollaborative,
		RevokedBy:       c.RevokedBy,
		RevokedAt:       c.RevokedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type collaboratorResponse struct {
	ID              string                      `json:"id"`
	ContractID      string                      `json:"contract_id"`
	ParticipantType contract.ParticipantType    `json:"participant_type"`
	Role            contract.CollaboratorRole   `json:"role"`
	UserID          string                      `json:"user_id,omitempty"`
	Email           string                      `json:"email,omitempty"`
	DisplayName     string                      `json:"display_name,omitempty"`
	Status          contract.CollaboratorStatus `json:"status"`
	RejectionReason string                      `json:"rejection_reason,omitempty"`
	RespondedAt     *time.Time                  `json:"responded_at,omitempty"`
}

func toCollaboratorResponse(c contract.Collaborator) collaboratorResponse {
	return collaboratorResponse{
		ID:              c.ID,
		ContractID:      c.ContractID,
		ParticipantType: c.ParticipantType,
		Role:            c.Role,
		UserID:          c.UserID,
		Email:           c.Email,
		DisplayName:     c.DisplayName,
		Status:          c.Status,
		RejectionReason: c.RejectionReason,
		RespondedAt:     c.RespondedAt,
	}
}

type invitationResponse struct {
	ID         string                    `json:"id"`
	ContractID string                    `json:"contract_id"`
	Email      string                    `json:"email"`
	Code       string                    `json:"code"`
	Status     contract.InvitationStatus `json:"status"`
	ExpiresAt  time.Time                 `json:"expires_at"`
}

type amendmentResponse struct {
	ID              string                   `json:"id"`
	ContractID      string                   `json:"contract_id"`
	RequesterUserID string                   `json:"requester_user_id"`
	Type            contract.AmendmentType   `json:"type"`
	Changes         contract.Changes         `json:"changes"`
	Reason          string                   `json:"reason,omitempty"`
	Status          contract.AmendmentStatus `json:"status"`
	Approvers       []string                 `json:"approvers,omitempty"`
	RejectedBy      string                   `json:"rejected_by,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	ResolvedAt      *time.Time               `json:"resolved_at,omitempty"`
}

func toAmendmentResponse(a contract.Amendment) amendmentResponse {
	return amendmentResponse{
		ID:              a.ID,
		ContractID:      a.ContractID,
		RequesterUserID: a.RequesterUserID,
		Type:            a.Type,
		Changes:         a.Changes,
		Reason:          a.Reason,
		Status:          a.Status,
		Approvers:       a.Approvers,
		RejectedBy:      a.RejectedBy,
		RejectionReason: a.RejectionReason,
		ResolvedAt:      a.ResolvedAt,
	}
}

type saveDraftRequest struct {
	DraftID         string                    `json:"draft_id,omitempty"`
	OwnerUserID     string                    `json:"owner_user_id"`
	EncounterType   string                    `json:"encounter_type"`
	Jurisdiction    flow.Jurisdiction         `json:"jurisdiction"`
	Parties         []string                  `json:"parties"`
	Acts            map[string]flow.ActChoice `json:"acts,omitempty"`
	StartTime       *time.Time                `json:"start_time,omitempty"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
	Method          flow.Method               `json:"method,omitempty"`
	Summary         string                    `json:"summary,omitempty"`
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}

	c, err := h.service.SaveDraft(r.Context(), flow.DraftPayload{
		DraftID:         req.DraftID,
		OwnerUserID:     req.OwnerUserID,
		EncounterType:   req.EncounterType,
		Jurisdiction:    req.Jurisdiction,
		Parties:         req.Parties,
		Acts:            req.Acts,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Method:          req.Method,
		Summary:         req.Summary,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if req.DraftID != "" {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toContractResponse(c))
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, collaborators, err := h.service.GetContract(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	collabs := make([]collaboratorResponse, 0, len(collaborators))
	for _, collab := range collaborators {
		collabs = append(collabs, toCollaboratorResponse(collab))
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		Contract      contractResponse       `json:"contract"`
		Collaborators []collaboratorResponse `json:"collaborators"`
	}{toContractResponse(c), collabs})
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		httpx.WriteErrorCode(w, apperrors.CodeContractEmptyOwnerID, "owner query parameter is required")
		return
	}
	contracts, err := h.service.ListContracts(r.Context(), owner)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, toContractResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		Contracts []contractResponse `json:"contracts"`
	}{out})
}

func (h *Handler) finalizeContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.FinalizeDraft(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toContractResponse(c))
}

type shareRequest struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	InviterID   string `json:"inviter_user_id,omitempty"`
}

func (h *Handler) shareContract(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	contractID := chi.URLParam(r, "contractID")

	if req.UserID != "" {
		collab, err := h.service.ShareWithUser(r.Context(), contractID, req.UserID, req.DisplayName, contract.CollaboratorRole(req.Role))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toCollaboratorResponse(collab))
		return
	}

	inv, err := h.service.ShareWithEmail(r.Context(), contractID, req.InviterID, req.Email)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, invitationResponse{
		ID:         inv.ID,
		ContractID: inv.ContractID,
		Email:      inv.Email,
		Code:       inv.Code,
		Status:     inv.Status,
		ExpiresAt:  inv.ExpiresAt,
	})
}

type acceptInvitationRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	collab, err := h.service.AcceptInvitation(r.Context(), chi.URLParam(r, "code"), req.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toCollaboratorResponse(collab))
}

func (h *Handler) reviewCollaborator(w http.ResponseWriter, r *http.Request) {
	collab, err := h.service.MarkCollaboratorReviewing(r.Context(), chi.URLParam(r, "collaboratorID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCollaboratorResponse(collab))
}

func (h *Handler) approveCollaborator(w http.ResponseWriter, r *http.Request) {
	collab, err := h.service.ApproveCollaborator(r.Context(), chi.URLParam(r, "collaboratorID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCollaboratorResponse(collab))
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (h *Handler) rejectCollaborator(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	collab, err := h.service.RejectCollaborator(r.Context(), chi.URLParam(r, "collaboratorID"), req.Reason)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCollaboratorResponse(collab))
}

type proposeAmendmentRequest struct {
	RequesterUserID string           `json:"requester_user_id"`
	Type            string           `json:"type"`
	Changes         contract.Changes `json:"changes"`
	Reason          string           `json:"reason,omitempty"`
}

func (h *Handler) proposeAmendment(w http.ResponseWriter, r *http.Request) {
	var req proposeAmendmentRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	amendmentType, ok := contract.ParseAmendmentType(req.Type)
	if !ok {
		httpx.WriteError(w, contract.ErrInvalidAmendmentType)
		return
	}

	a, err := h.service.ProposeAmendment(r.Context(), contract.ProposeAmendmentInput{
		ContractID:      chi.URLParam(r, "contractID"),
		RequesterUserID: req.RequesterUserID,
		Type:            amendmentType,
		Changes:         req.Changes,
		Reason:          req.Reason,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAmendmentResponse(a))
}

func (h *Handler) listAmendments(w http.ResponseWriter, r *http.Request) {
	amendments, err := h.service.ListAmendments(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]amendmentResponse, 0, len(amendments))
	for _, a := range amendments {
		out = append(out, toAmendmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		Amendments []amendmentResponse `json:"amendments"`
	}{out})
}

type voteRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) approveAmendment(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	a, err := h.service.ApproveAmendment(r.Context(), chi.URLParam(r, "amendmentID"), req.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAmendmentResponse(a))
}

func (h *Handler) rejectAmendment(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	a, err := h.service.RejectAmendment(r.Context(), chi.URLParam(r, "amendmentID"), req.UserID, req.Reason)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAmendmentResponse(a))
}

type revokeRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) revokeContract(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	c, err := h.service.RevokeContract(r.Context(), chi.URLParam(r, "contractID"), req.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toContractResponse(c))
}

type preferencesRequest struct {
	DefaultEncounterType   string            `json:"default_encounter_type,omitempty"`
	DefaultJurisdiction    flow.Jurisdiction `json:"default_jurisdiction,omitempty"`
	DefaultDurationMinutes int               `json:"default_duration_minutes,omitempty"`
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Preferences(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, preferencesRequest{
		DefaultEncounterType:   prefs.DefaultEncounterType,
		DefaultJurisdiction:    prefs.DefaultJurisdiction,
		DefaultDurationMinutes: prefs.DefaultDurationMinutes,
	})
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErrorCode(w, apperrors.CodeInvalidRequest, "invalid request body")
		return
	}
	err := h.service.SavePreferences(r.Context(), chi.URLParam(r, "userID"), flow.Preferences{
		DefaultEncounterType:   req.DefaultEncounterType,
		DefaultJurisdiction:    req.DefaultJurisdiction,
		DefaultDurationMinutes: req.DefaultDurationMinutes,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
