// Package editor coerces suggested input values against a job spec and
// aggregates the per-input results into a submittable job request.
package editor

import (
	"fmt"
	"strings"

	"github.com/jobson/jobson-cli/internal/models"
)

// InputUpdate is the state of a single input editor: exactly one of a value,
// missing, or a list of errors. Callers observe it only through Visit or MatchInput.
type InputUpdate interface {
	Visit(v InputVisitor)
	sealedInput()
}

// InputVisitor receives the variant held by an InputUpdate.
type InputVisitor interface {
	VisitValue(value any)
	VisitMissing()
	VisitErrors(errs []string)
}

type valueInput struct{ value any }
type missingInput struct{}
type errorsInput struct{ errs []string }

func (u valueInput) Visit(v InputVisitor)  { v.VisitValue(u.value) }
func (missingInput) Visit(v InputVisitor)  { v.VisitMissing() }
func (u errorsInput) Visit(v InputVisitor) { v.VisitErrors(append([]string(nil), u.errs...)) }
func (valueInput) sealedInput()            {}
func (missingInput) sealedInput()          {}
func (errorsInput) sealedInput()           {}
func (u valueInput) String() string        { return fmt.Sprintf("value(%v)", u.value) }
func (missingInput) String() string        { return "missing" }
func (u errorsInput) String() string       { return "errors(" + strings.Join(u.errs, "; ") + ")" }

// Value wraps an accepted input value.
func Value(v any) InputUpdate { return valueInput{value: v} }

// Missing marks an input that has no value.
func Missing() InputUpdate { return missingInput{} }

// Errors marks an input whose raw state is invalid.
func Errors(errs ...string) InputUpdate {
	return errorsInput{errs: append([]string(nil), errs...)}
}

// InputFuncs adapts three functions to an InputVisitor.
type InputFuncs struct {
	OnValue   func(any)
	OnMissing func()
	OnErrors  func([]string)
}

func (f InputFuncs) VisitValue(v any) {
	if f.OnValue != nil {
		f.OnValue(v)
	}
}

func (f InputFuncs) VisitMissing() {
	if f.OnMissing != nil {
		f.OnMissing()
	}
}

func (f InputFuncs) VisitErrors(errs []string) {
	if f.OnErrors != nil {
		f.OnErrors(errs)
	}
}

// MatchInput dispatches on the variant of u and returns the handler's result.
func MatchInput[T any](u InputUpdate, onValue func(any) T, onMissing func() T, onErrors func([]string) T) T {
	var out T
	u.Visit(InputFuncs{
		OnValue:   func(v any) { out = onValue(v) },
		OnMissing: func() { out = onMissing() },
		OnErrors:  func(errs []string) { out = onErrors(errs) },
	})
	return out
}

// RequestUpdate is the aggregate state of a job request: either a complete
// request or the list of reasons it cannot be submitted.
type RequestUpdate interface {
	Visit(v RequestVisitor)
	sealedRequest()
}

// RequestVisitor receives the variant held by a RequestUpdate.
type RequestVisitor interface {
	VisitRequest(req models.JobRequest)
	VisitErrors(errs []string)
}

type requestValue struct{ req models.JobRequest }
type requestErrors struct{ errs []string }

func (u requestValue) Visit(v RequestVisitor)  { v.VisitRequest(u.req.Clone()) }
func (u requestErrors) Visit(v RequestVisitor) { v.VisitErrors(append([]string(nil), u.errs...)) }
func (requestValue) sealedRequest()            {}
func (requestErrors) sealedRequest()           {}

// RequestValue wraps a complete job request.
func RequestValue(req models.JobRequest) RequestUpdate { return requestValue{req: req.Clone()} }

// RequestErrors wraps the reasons a request is incomplete.
func RequestErrors(errs ...string) RequestUpdate {
	return requestErrors{errs: append([]string(nil), errs...)}
}

// RequestFuncs adapts two functions to a RequestVisitor.
type RequestFuncs struct {
	OnRequest func(models.JobRequest)
	OnErrors  func([]string)
}

func (f RequestFuncs) VisitRequest(req models.JobRequest) {
	if f.OnRequest != nil {
		f.OnRequest(req)
	}
}

func (f RequestFuncs) VisitErrors(errs []string) {
	if f.OnErrors != nil {
		f.OnErrors(errs)
	}
}

// MatchRequest dispatches on the variant of u and returns the handler's result.
func MatchRequest[T any](u RequestUpdate, onRequest func(models.JobRequest) T, onErrors func([]string) T) T {
	var out T
	u.Visit(RequestFuncs{
		OnRequest: func(req models.JobRequest) { out = onRequest(req) },
		OnErrors:  func(errs []string) { out = onErrors(errs) },
	})
	return out
}

// RequestOf returns the request held by u, if any.
func RequestOf(u RequestUpdate) (models.JobRequest, bool) {
	var (
		req models.JobRequest
		ok  bool
	)
	u.Visit(RequestFuncs{OnRequest: func(r models.JobRequest) { req, ok = r, true }})
	return req, ok
}

// ErrorsOf returns the error messages held by u, or nil when u is a request.
func ErrorsOf(u RequestUpdate) []string {
	var errs []string
	u.Visit(RequestFuncs{OnErrors: func(e []string) { errs = e }})
	return errs
}
