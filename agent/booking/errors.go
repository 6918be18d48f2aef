package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/backend"
)

type Kind string

const (
	KindUnresolvedEntity   Kind = "unresolved_entity"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindBackendRejected    Kind = "backend_rejected"
	KindInvalidRequest     Kind = "invalid_request"
)

var (
	ErrUnresolvedEntity   = errors.New("unresolved entity")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendRejected    = errors.New("backend rejected request")
	ErrInvalidRequest     = errors.New("invalid booking request")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnresolvedEntity:
		return ErrUnresolvedEntity
	case KindBackendUnavailable:
		return ErrBackendUnavailable
	case KindBackendRejected:
		return ErrBackendRejected
	case KindInvalidRequest:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// Role names the entity a failure is about.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleProfessional Role = "professional"
	RoleService      Role = "service"
	RoleAppointment  Role = "appointment"
)

// Candidate is a backend record offered back to the caller when a lookup
// was ambiguous.
type Candidate struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name,omitempty"`
}

// Error is the structured failure of a booking. errors.Is matches it
// against the package sentinel of its Kind.
type Error struct {
	Kind       Kind        `json:"kind"`
	Entity     Role        `json:"entity,omitempty"`
	Detail     string      `json:"detail"`
	StatusCode int         `json:"status_code,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Err        error       `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Entity != "" {
		msg += " (" + string(e.Entity) + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func unresolved(role Role, detail string, candidates []backend.Record) *Error {
	err := &Error{Kind: KindUnresolvedEntity, Entity: role, Detail: detail}
	for _, rec := range candidates {
		err.Candidates = append(err.Candidates, Candidate{ID: rec.ID, Name: rec.Name})
	}
	return err
}

// fromBackend classifies a backend client failure. Anything that never got
// an HTTP answer, including an expired deadline, is unavailability.
func fromBackend(role Role, err error) *Error {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:       KindBackendRejected,
			Entity:     role,
			Detail:     statusErr.Detail,
			StatusCode: statusErr.StatusCode,
			Err:        err,
		}
	}

	detail := "appointments service is unreachable"
	if errors.Is(err, context.DeadlineExceeded) {
		detail = "appointments service timed out"
	} else if errors.Is(err, context.Canceled) {
		detail = "booking was cancelled"
	}
	return &Error{
		Kind:   KindBackendUnavailable,
		Entity: role,
		Detail: detail,
		Err:    err,
	}
}

// KindOf reports the kind of a booking failure, or "" when err is not one.
func KindOf(err error) Kind {
	var bookingErr *Error
	if errors.As(err, &bookingErr) {
		return bookingErr.Kind
	}
	return ""
}
