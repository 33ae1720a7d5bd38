package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *Server) {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	if opts.Specs == nil {
		specs, err := DemoSpecs()
		if err != nil {
			t.Fatalf("DemoSpecs failed: %v", err)
		}
		opts.Specs = specs
	}
	if opts.StepDelay == 0 {
		opts.StepDelay = 10 * time.Millisecond
	}
	srv, err := New(store, opts, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		store.Close()
	})
	return ts, srv
}

func newClient(t *testing.T, ts *httptest.Server, username, password string) *api.Client {
	t.Helper()
	cfg := config.New()
	cfg.URL = ts.URL + DefaultBasePath
	cfg.Username = username
	cfg.Password = password
	client, err := api.NewClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func waitForStatus(t *testing.T, client *api.Client, jobID, status string) models.JobDetails {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		details, err := client.FetchJobDetails(ctx, jobID)
		if err != nil {
			t.Fatalf("FetchJobDetails failed: %v", err)
		}
		if details.LatestStatus() == status {
			return *details
		}
		select {
		case <-ctx.Done():
			t.Fatalf("job %s never reached %s (last %s)", jobID, status, details.LatestStatus())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDemoSpecs(t *testing.T) {
	specs, err := DemoSpecs()
	if err != nil {
		t.Fatalf("DemoSpecs failed: %v", err)
	}
	var ids []string
	for _, s := range specs {
		ids = append(ids, s.ID)
		for _, in := range s.ExpectedInputs {
			if !editor.IsSupportedType(in.Type) {
				t.Errorf("%s.%s has unsupported type %s", s.ID, in.ID, in.Type)
			}
		}
	}
	if diff := cmp.Diff([]string{"echo", "kitchen-sink"}, ids); diff != "" {
		t.Errorf("spec ids mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_WarnsAboutUnsupportedTypes(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	var buf bytes.Buffer
	specs := []models.JobSpec{{
		ID: "odd",
		ExpectedInputs: []models.ExpectedInput{
			{ID: "m", Type: "matrix"},
			{ID: "s", Type: "string"},
		},
	}}
	srv, err := New(store, Options{Specs: specs}, logging.New(logging.Options{Console: &buf}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer srv.Close()

	out := buf.String()
	if !strings.Contains(out, "Clients cannot edit this input type") || !strings.Contains(out, "matrix") {
		t.Errorf("Expected a warning naming the matrix input, got %q", out)
	}
	if strings.Count(out, "Clients cannot edit") != 1 {
		t.Errorf("Expected exactly one warning, got %q", out)
	}
}

func TestLoadSpecs(t *testing.T) {
	fsys := fstest.MapFS{
		"b.json":       {Data: []byte(`{"id":"b","name":"B","expectedInputs":[]}`)},
		"nested/a.yml": {Data: []byte("id: a\nname: A\nexpectedInputs: []\n")},
		"README.md":    {Data: []byte("not a spec")},
	}
	specs, err := LoadSpecs(fsys)
	if err != nil {
		t.Fatalf("LoadSpecs failed: %v", err)
	}
	if len(specs) != 2 || specs[0].ID != "a" || specs[1].ID != "b" {
		t.Errorf("unexpected specs: %+v", specs)
	}

	fsys["c.yaml"] = &fstest.MapFile{Data: []byte("id: a\n")}
	if _, err := LoadSpecs(fsys); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestServer_SubmitAndRun(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	client := newClient(t, ts, "", "")
	ctx := context.Background()

	summaries, err := client.FetchJobSpecSummaries(ctx)
	if err != nil {
		t.Fatalf("FetchJobSpecSummaries failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ID != "echo" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	req := models.JobRequest{Spec: "echo", Name: "greeting", Inputs: map[string]any{"message": "hi"}}
	created, err := client.SubmitJobRequest(ctx, req)
	if err != nil {
		t.Fatalf("SubmitJobRequest failed: %v", err)
	}

	details := waitForStatus(t, client, created.ID, StatusFinished)
	var statuses []string
	for _, stamp := range details.Timestamps {
		statuses = append(statuses, stamp.Status)
	}
	if diff := cmp.Diff([]string{StatusSubmitted, StatusRunning, StatusFinished}, statuses); diff != "" {
		t.Errorf("status history mismatch (-want +got):\n%s", diff)
	}
	if details.Name != "greeting" || details.Owner != guestUser {
		t.Errorf("unexpected details: %+v", details)
	}

	stdout, err := client.FetchJobStdout(ctx, created.ID)
	if err != nil {
		t.Fatalf("FetchJobStdout failed: %v", err)
	}
	if want := "message=\"hi\"\nrepeat=1\n"; string(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	stderr, err := client.FetchJobStderr(ctx, created.ID)
	if err != nil || len(stderr) != 0 {
		t.Errorf("expected empty stderr, got %q, %v", stderr, err)
	}

	inputs, err := client.FetchJobInputs(ctx, created.ID)
	if err != nil {
		t.Fatalf("FetchJobInputs failed: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"message": "hi"}, inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	spec, err := client.FetchJobSpecForJob(ctx, created.ID)
	if err != nil || spec.ID != "echo" {
		t.Errorf("FetchJobSpecForJob = %+v, %v", spec, err)
	}

	outputs, err := client.FetchJobOutputs(ctx, created.ID)
	if err != nil {
		t.Fatalf("FetchJobOutputs failed: %v", err)
	}
	if len(outputs) != 1 || outputs[0].ID != StreamStdout {
		t.Fatalf("unexpected outputs: %+v", outputs)
	}
	var buf bytes.Buffer
	n, err := client.DownloadJobOutput(ctx, created.ID, StreamStdout, &buf)
	if err != nil || n != int64(len(stdout)) || buf.String() != string(stdout) {
		t.Errorf("DownloadJobOutput = %d, %q, %v", n, buf.String(), err)
	}

	list, err := client.FetchJobSummaries(ctx, "greet", 0)
	if err != nil {
		t.Fatalf("FetchJobSummaries failed: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].ID != created.ID {
		t.Errorf("unexpected job list: %+v", list.Entries)
	}
}

func TestServer_RejectsInvalidRequests(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	client := newClient(t, ts, "", "")
	ctx := context.Background()

	tests := []struct {
		name    string
		req     models.JobRequest
		message string
	}{
		{
			name:    "unknown spec",
			req:     models.JobRequest{Spec: "nope", Name: "x", Inputs: map[string]any{}},
			message: "job spec 'nope' does not exist",
		},
		{
			name:    "missing input",
			req:     models.JobRequest{Spec: "kitchen-sink", Name: "x", Inputs: map[string]any{"label": "l"}},
			message: "input 'seed' is missing",
		},
		{
			name:    "undeclared input",
			req:     models.JobRequest{Spec: "echo", Name: "x", Inputs: map[string]any{"colour": "red"}},
			message: "input 'colour' is not expected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SubmitJobRequest(ctx, tt.req)
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.Error, got %v", err)
			}
			if apiErr.Code != http.StatusBadRequest || !strings.Contains(apiErr.Message, tt.message) {
				t.Errorf("got %d %q, want 400 containing %q", apiErr.Code, apiErr.Message, tt.message)
			}
		})
	}
}

func TestServer_NotFound(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	client := newClient(t, ts, "", "")
	ctx := context.Background()

	if _, err := client.FetchJobSpec(ctx, "nope"); !api.IsNotFound(err) {
		t.Errorf("FetchJobSpec: expected not found, got %v", err)
	}
	if _, err := client.FetchJobDetails(ctx, "nope"); !api.IsNotFound(err) {
		t.Errorf("FetchJobDetails: expected not found, got %v", err)
	}
	if err := client.AbortJob(ctx, "nope"); !api.IsNotFound(err) {
		t.Errorf("AbortJob: expected not found, got %v", err)
	}
}

func TestServer_Abort(t *testing.T) {
	ts, _ := newTestServer(t, Options{StepDelay: time.Hour})
	client := newClient(t, ts, "", "")
	ctx := context.Background()

	created, err := client.SubmitJobRequest(ctx, models.JobRequest{Spec: "echo", Name: "slow", Inputs: map[string]any{}})
	if err != nil {
		t.Fatalf("SubmitJobRequest failed: %v", err)
	}
	if err := client.AbortJob(ctx, created.ID); err != nil {
		t.Fatalf("AbortJob failed: %v", err)
	}
	waitForStatus(t, client, created.ID, StatusAborted)

	err = client.AbortJob(ctx, created.ID)
	if err == nil || !strings.Contains(err.Error(), "cannot be aborted") {
		t.Errorf("expected second abort to be rejected, got %v", err)
	}
}

func TestServer_BasicAuth(t *testing.T) {
	ts, _ := newTestServer(t, Options{Users: map[string]string{"alice": "pw"}})
	ctx := context.Background()

	_, err := newClient(t, ts, "", "").FetchCurrentUser(ctx)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}

	user, err := newClient(t, ts, "alice", "pw").FetchCurrentUser(ctx)
	if err != nil || user != "alice" {
		t.Errorf("FetchCurrentUser = %q, %v", user, err)
	}
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultBasePath + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s failed: %v", path, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_JobEvents(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	client := newClient(t, ts, "", "")

	conn := dialWS(t, ts, "/v1/jobs/events")
	created, err := client.SubmitJobRequest(context.Background(), models.JobRequest{Spec: "echo", Name: "x", Inputs: map[string]any{}})
	if err != nil {
		t.Fatalf("SubmitJobRequest failed: %v", err)
	}

	var got []string
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for len(got) == 0 || got[len(got)-1] != StatusFinished {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed after %v: %v", got, err)
		}
		var ev models.JobEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad event %q: %v", msg, err)
		}
		if ev.JobID == created.ID {
			got = append(got, ev.NewStatus)
		}
	}
	if diff := cmp.Diff([]string{StatusSubmitted, StatusRunning, StatusFinished}, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_StdoutUpdates(t *testing.T) {
	ts, _ := newTestServer(t, Options{StepDelay: 50 * time.Millisecond})
	client := newClient(t, ts, "", "")

	created, err := client.SubmitJobRequest(context.Background(), models.JobRequest{Spec: "echo", Name: "x", Inputs: map[string]any{"repeat": 2}})
	if err != nil {
		t.Fatalf("SubmitJobRequest failed: %v", err)
	}
	conn := dialWS(t, ts, "/v1/jobs/"+created.ID+"/stdout/updates")

	var out strings.Builder
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for !strings.Contains(out.String(), "repeat=2\n") {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed after %q: %v", out.String(), err)
		}
		out.Write(msg)
	}
	if !strings.HasPrefix(out.String(), "message=") {
		t.Errorf("unexpected stdout stream %q", out.String())
	}
}

func TestServer_IdleSubscriptionClosedWithGoingAway(t *testing.T) {
	ts, _ := newTestServer(t, Options{IdleTimeout: 50 * time.Millisecond})
	conn := dialWS(t, ts, "/v1/jobs/events")

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
