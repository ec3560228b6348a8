package services

import (
	"errors"
	"fmt"
	"strings"
)

const ConflictCode = "BOOKING_CONFLICT"

// Conflict is one calendar day that cannot be claimed.
type Conflict struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// ConflictError is an expected outcome under concurrent demand: the
// requested dates are no longer free.
type ConflictError struct {
	Conflicts []Conflict
}

func (e ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ConflictCode
	}
	dates := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		dates = append(dates, c.Date)
	}
	return fmt.Sprintf("%s: %s", ConflictCode, strings.Join(dates, ", "))
}

func (e ConflictError) Code() string { return ConflictCode }

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field != "" && e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

// InfrastructureError is a retryable storage or timeout failure. Nothing
// was claimed when it is returned from the reservation path.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e InfrastructureError) Error() string {
	if e.Err == nil {
		return e.Op + ": infrastructure failure"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e InfrastructureError) Unwrap() error { return e.Err }

// SettlementSideEffectError collects the settlement steps that failed after
// the booking row committed. Re-running settlement is safe.
type SettlementSideEffectError struct {
	BookingID string
	Steps     map[string]error
}

func (e SettlementSideEffectError) Error() string {
	names := make([]string, 0, len(e.Steps))
	for _, step := range settlementStepOrder {
		if err, ok := e.Steps[step]; ok {
			names = append(names, fmt.Sprintf("%s: %v", step, err))
		}
	}
	return fmt.Sprintf("settlement of booking %s incomplete: %s", e.BookingID, strings.Join(names, "; "))
}

func (e SettlementSideEffectError) Unwrap() []error {
	errs := make([]error, 0, len(e.Steps))
	for _, step := range settlementStepOrder {
		if err, ok := e.Steps[step]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsInfrastructure(err error) bool {
	var target InfrastructureError
	return errors.As(err, &target)
}

func IsSettlementSideEffect(err error) bool {
	var target SettlementSideEffectError
	return errors.As(err, &target)
}
