package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity marks an issue as blocking registration or advisory.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// maxIssuesInMessage caps how many errors ToError spells out.
const maxIssuesInMessage = 3

// ValidationIssue is one problem in a workflow definition. Path uses the
// definition's own field names, e.g. steps[1].params or triggers[0].params.cron.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult collects the issues found in one workflow definition.
// Only errors block registration.
type ValidationResult struct {
	WorkflowID string            `json:"workflow_id,omitempty"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
	Warnings   []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge appends other's issues. A nil other is a no-op.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	if r.WorkflowID == "" {
		r.WorkflowID = other.WorkflowID
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError returns nil for a valid result, otherwise a VALIDATION_ERROR
// naming the first few errors and carrying all issues in its details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	var msg string
	if len(r.Errors) == 1 {
		msg = r.Errors[0].String()
	} else {
		shown := make([]string, 0, maxIssuesInMessage)
		for _, issue := range r.Errors[:min(len(r.Errors), maxIssuesInMessage)] {
			shown = append(shown, issue.String())
		}
		msg = fmt.Sprintf("%d errors: %s", len(r.Errors), strings.Join(shown, "; "))
		if len(r.Errors) > maxIssuesInMessage {
			msg += fmt.Sprintf("; and %d more", len(r.Errors)-maxIssuesInMessage)
		}
	}

	err := NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
	if r.WorkflowID != "" {
		err = err.WithWorkflow(r.WorkflowID)
	}
	return err
}
