package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed failure surface of the engine. Code is a stable
// machine-readable identifier an agent can branch on; Details name the
// exact field or precondition so the agent can self-correct and retry.
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Stable error codes.
const (
	CodeNotFound           = "task.not_found"
	CodeNotOwner           = "submission.not_owner"
	CodeActiveTaskConflict = "claim.active_task_conflict"
	CodeUnknownAgentRole   = "claim.unknown_agent_role"
	CodeDuplicateSourceID  = "ingest.conflict.source_id"
	CodeMissingField       = "ingest.validation.missing_field"
	CodeInvalidSegment     = "ingest.validation.invalid_segment"
	CodeInvalidStatus      = "ingest.validation.invalid_status"
	CodeMissingArtifact    = "validation.missing_artifact"
)

func newError(status int, code, message string, details map[string]string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func errNotFound(what string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

func errNotOwner(assignedTo string) *Error {
	if assignedTo == "" {
		assignedTo = "unassigned"
	}
	return newError(http.StatusForbidden, CodeNotOwner,
		"task is assigned to a different agent",
		map[string]string{"assignedTo": assignedTo})
}

func errActiveTaskConflict(itemID string) *Error {
	return newError(http.StatusConflict, CodeActiveTaskConflict,
		"agent already has a task in flight; submit or return it first",
		map[string]string{"itemId": itemID})
}

func errUnknownAgentRole(role string) *Error {
	return newError(http.StatusNotFound, CodeUnknownAgentRole,
		"no preference profile registered for agent role",
		map[string]string{"role": role})
}

func errDuplicateSourceID(sourceID string) *Error {
	return newError(http.StatusConflict, CodeDuplicateSourceID,
		"a task with this sourceId already exists",
		map[string]string{"sourceId": sourceID})
}

func errMissingField(field string) *Error {
	return newError(http.StatusBadRequest, CodeMissingField,
		field+" is required", map[string]string{"field": field})
}

func errInvalidSegment(path, segment string) *Error {
	return newError(http.StatusBadRequest, CodeInvalidSegment,
		"segment is not registered for this pipeline",
		map[string]string{path: segment})
}

func errInvalidStatus(path, status string) *Error {
	return newError(http.StatusBadRequest, CodeInvalidStatus,
		"unknown task status", map[string]string{path: status})
}

func errMissingArtifact() *Error {
	return newError(http.StatusBadRequest, CodeMissingArtifact,
		"a submission needs at least one file or link artifact",
		map[string]string{"artifacts": "add a file or a result link"})
}

// AsEngineError unwraps err into *Error if it carries one.
func AsEngineError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
