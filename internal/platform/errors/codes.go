// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"
	// CodeInvalidRequest represents a request body that could not be decoded.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Flow errors
	CodeFlowEncounterTypeEmpty   Code = "FLOW_ENCOUNTER_TYPE_EMPTY"
	CodeFlowEncounterTypeUnknown Code = "FLOW_ENCOUNTER_TYPE_UNKNOWN"
	CodeFlowJurisdictionMissing  Code = "FLOW_JURISDICTION_MISSING"
	CodeFlowPartyRequired        Code = "FLOW_PARTY_REQUIRED"
	CodeFlowEndTimeInPast        Code = "FLOW_END_TIME_IN_PAST"
	CodeFlowMethodMissing        Code = "FLOW_METHOD_MISSING"
	CodeFlowStepOutOfRange       Code = "FLOW_STEP_OUT_OF_RANGE"

	// Party errors
	CodePartyHandleInvalid   Code = "PARTY_HANDLE_INVALID"
	CodePartyHandleTooLong   Code = "PARTY_HANDLE_TOO_LONG"
	CodePartyNameTooShort    Code = "PARTY_NAME_TOO_SHORT"
	CodePartyDuplicate       Code = "PARTY_DUPLICATE"
	CodePartyIndexReserved   Code = "PARTY_INDEX_RESERVED"
	CodePartyIndexOutOfRange Code = "PARTY_INDEX_OUT_OF_RANGE"

	// Draft errors
	CodeDraftCollaborative Code = "DRAFT_COLLABORATIVE"

	// Contract errors
	CodeContractInvalidStatusTransition Code = "CONTRACT_INVALID_STATUS_TRANSITION"
	CodeContractStatusDisallowsOp       Code = "CONTRACT_STATUS_DISALLOWS_OPERATION"
	CodeContractEmptyOwnerID            Code = "CONTRACT_EMPTY_OWNER_ID"

	// Collaborator errors
	CodeCollaboratorTerminalStatus Code = "COLLABORATOR_TERMINAL_STATUS"
	CodeCollaboratorInvalidStatus  Code = "COLLABORATOR_INVALID_STATUS"
	CodeCollaboratorEmptyIdentity  Code = "COLLABORATOR_EMPTY_IDENTITY"
	CodeCollaboratorInvalidRole    Code = "COLLABORATOR_INVALID_ROLE"

	// Invitation errors
	CodeInvitationExpired         Code = "INVITATION_EXPIRED"
	CodeInvitationAlreadyAccepted Code = "INVITATION_ALREADY_ACCEPTED"
	CodeInvitationEmptyEmail      Code = "INVITATION_EMPTY_EMAIL"

	// Amendment errors
	CodeAmendmentInvalidType         Code = "AMENDMENT_INVALID_TYPE"
	CodeAmendmentMalformedChanges    Code = "AMENDMENT_MALFORMED_CHANGES"
	CodeAmendmentTerminalStatus      Code = "AMENDMENT_TERMINAL_STATUS"
	CodeAmendmentRequesterCannotVote Code = "AMENDMENT_REQUESTER_CANNOT_VOTE"
	CodeAmendmentEndTimeNotExtended  Code = "AMENDMENT_END_TIME_NOT_EXTENDED"
	CodeAmendmentEndTimeNotShortened Code = "AMENDMENT_END_TIME_NOT_SHORTENED"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, bad input
	case CodeInvalidRequest,
		CodeFlowEncounterTypeEmpty,
		CodeFlowEncounterTypeUnknown,
		CodeFlowJurisdictionMissing,
		CodeFlowPartyRequired,
		CodeFlowEndTimeInPast,
		CodeFlowMethodMissing,
		CodeFlowStepOutOfRange,
		CodePartyHandleInvalid,
		CodePartyHandleTooLong,
		CodePartyNameTooShort,
		CodePartyDuplicate,
		CodePartyIndexReserved,
		CodePartyIndexOutOfRange,
		CodeContractEmptyOwnerID,
		CodeCollaboratorEmptyIdentity,
		CodeCollaboratorInvalidRole,
		CodeInvitationEmptyEmail,
		CodeAmendmentInvalidType:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeDraftCollaborative,
		CodeContractInvalidStatusTransition,
		CodeContractStatusDisallowsOp,
		CodeCollaboratorTerminalStatus,
		CodeCollaboratorInvalidStatus,
		CodeInvitationAlreadyAccepted,
		CodeAmendmentTerminalStatus,
		CodeAmendmentRequesterCannotVote,
		CodeAmendmentEndTimeNotExtended,
		CodeAmendmentEndTimeNotShortened,
		CodeAlreadyExists:
		return http.StatusConflict

	// Gone - the acceptance window has closed
	case CodeInvitationExpired:
		return http.StatusGone

	// Unprocessable - structurally broken payloads
	case CodeAmendmentMalformedChanges:
		return http.StatusUnprocessableEntity

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
