package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultJobName is used whenever a request is built without a job name.
const DefaultJobName = "default"

// JobRequest is the body of POST /v1/jobs. While editing it doubles as the draft;
// an empty Spec means no spec has been chosen yet.
type JobRequest struct {
	Spec   string         `json:"spec,omitempty"`
	Name   string         `json:"name"`
	Inputs map[string]any `json:"inputs"`
}

// NewDraftRequest returns the blank draft used when no job is being resubmitted.
func NewDraftRequest() JobRequest {
	return JobRequest{Name: DefaultJobName, Inputs: map[string]any{}}
}

// Clone returns a copy whose input map can be modified independently.
func (r JobRequest) Clone() JobRequest {
	inputs := make(map[string]any, len(r.Inputs))
	for k, v := range r.Inputs {
		inputs[k] = v
	}
	r.Inputs = inputs
	return r
}

// DecodeJobRequest parses a JSON or YAML request document, keeping numbers as
// json.Number so large integers survive unchanged.
func DecodeJobRequest(data []byte) (JobRequest, error) {
	doc, err := documentJSON(data)
	if err != nil {
		return JobRequest{}, fmt.Errorf("failed to decode job request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var req JobRequest
	if err := dec.Decode(&req); err != nil {
		return JobRequest{}, fmt.Errorf("failed to decode job request: %w", err)
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	return req, nil
}

// JobCreatedResponse is returned by POST /v1/jobs.
type JobCreatedResponse struct {
	ID    string              `json:"id"`
	Links map[string]RESTLink `json:"_links,omitempty"`
}

// Job statuses reported by the server.
const (
	JobStatusSubmitted  = "submitted"
	JobStatusRunning    = "running"
	JobStatusFinished   = "finished"
	JobStatusAborted    = "aborted"
	JobStatusFatalError = "fatal-error"
)

// IsFinalStatus reports whether a job in status can no longer change.
func IsFinalStatus(status string) bool {
	switch status {
	case JobStatusFinished, JobStatusAborted, JobStatusFatalError:
		return true
	}
	return false
}

// JobTimestamp records one status change of a job.
type JobTimestamp struct {
	Status  string `json:"status"`
	Time    string `json:"time"`
	Message string `json:"message,omitempty"`
}

// JobDetails is returned by GET /v1/jobs/{id} and inside job collections.
type JobDetails struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Owner      string              `json:"owner"`
	Timestamps []JobTimestamp      `json:"timestamps"`
	Links      map[string]RESTLink `json:"_links,omitempty"`
}

// LatestStatus returns the status of the most recent timestamp, or "" if none.
func (d JobDetails) LatestStatus() string {
	if len(d.Timestamps) == 0 {
		return ""
	}
	return d.Timestamps[len(d.Timestamps)-1].Status
}

// JobDetailsCollection is returned by GET /v1/jobs.
type JobDetailsCollection struct {
	Entries []JobDetails        `json:"entries"`
	Links   map[string]RESTLink `json:"_links,omitempty"`
}

// JobOutput describes one output produced by a job.
type JobOutput struct {
	ID          string              `json:"id"`
	Size        int64               `json:"size"`
	MimeType    string              `json:"mimeType,omitempty"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
	Links       map[string]RESTLink `json:"_links,omitempty"`
}

// JobOutputCollection is returned by GET /v1/jobs/{id}/outputs.
type JobOutputCollection struct {
	Entries []JobOutput `json:"entries"`
}

// JobEvent is a message on the /v1/jobs/events websocket.
type JobEvent struct {
	JobID     string `json:"jobId"`
	NewStatus string `json:"newStatus"`
}

// FileInput is the value of a file input: a filename plus base64 content.
type FileInput struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// UserID is returned by GET /v1/users/current.
type UserID struct {
	ID string `json:"id"`
}

// APIErrorMessage is the JSON body of an unsuccessful API response.
type APIErrorMessage struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}
