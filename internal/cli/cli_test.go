package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/mockserver"
	"github.com/jobson/jobson-cli/internal/models"
)

// testEnv is a mock server plus a config path the commands under test use.
type testEnv struct {
	url        string
	configPath string
	client     *api.Client
}

func newTestEnv(t *testing.T, opts mockserver.Options) *testEnv {
	t.Helper()
	for _, name := range []string{config.EnvURL, config.EnvUsername, config.EnvPassword} {
		t.Setenv(name, "")
	}

	store, err := mockserver.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	if opts.Specs == nil {
		if opts.Specs, err = mockserver.DemoSpecs(); err != nil {
			t.Fatalf("DemoSpecs failed: %v", err)
		}
	}
	if opts.StepDelay == 0 {
		opts.StepDelay = 10 * time.Millisecond
	}
	srv, err := mockserver.New(store, opts, nil)
	if err != nil {
		t.Fatalf("mockserver.New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		store.Close()
	})

	cfg := config.New()
	cfg.URL = ts.URL + mockserver.DefaultBasePath
	client, err := api.NewClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return &testEnv{
		url:        cfg.URL,
		configPath: filepath.Join(t.TempDir(), "config"),
		client:     client,
	}
}

// run executes the command line args against the mock server.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath, "--url", e.url}, args...)...)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	logger = nil
	rootCmd := NewRootCmd()
	AddCommands(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) waitFinished(t *testing.T, jobID string) models.JobDetails {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		details, err := e.client.FetchJobDetails(ctx, jobID)
		if err != nil {
			t.Fatalf("FetchJobDetails failed: %v", err)
		}
		if models.IsFinalStatus(details.LatestStatus()) {
			return *details
		}
		select {
		case <-ctx.Done():
			t.Fatalf("job %s never finished (last %s)", jobID, details.LatestStatus())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSpecsCommands(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{})

	out, _, err := env.run(t, "specs", "list")
	if err != nil {
		t.Fatalf("specs list failed: %v", err)
	}
	for _, id := range []string{"echo", "kitchen-sink"} {
		if !strings.Contains(out, id) {
			t.Errorf("specs list output is missing %s:\n%s", id, out)
		}
	}

	out, _, err = env.run(t, "specs", "show", "echo", "--json")
	if err != nil {
		t.Fatalf("specs show failed: %v", err)
	}
	var spec models.JobSpec
	if err := json.Unmarshal([]byte(out), &spec); err != nil {
		t.Fatalf("specs show --json printed invalid JSON: %v\n%s", err, out)
	}
	var ids []string
	for _, in := range spec.ExpectedInputs {
		ids = append(ids, in.ID)
	}
	if diff := cmp.Diff([]string{"message", "repeat"}, ids); diff != "" {
		t.Errorf("input ids mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := env.run(t, "specs", "show", "nope"); err == nil {
		t.Error("specs show of an unknown spec succeeded")
	}
}

func TestJobsCommands(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{})

	out, _, err := env.run(t, "submit", "--spec", "echo", "--name", "greeting", "--input", "message=hi", "--interactive=false")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	jobID := strings.TrimSpace(out)
	if jobID == "" {
		t.Fatal("submit printed no job id")
	}
	env.waitFinished(t, jobID)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"stdout", []string{"jobs", "stdout", jobID}, "message=\"hi\"\nrepeat=1\n"},
		{"stderr", []string{"jobs", "stderr", jobID}, ""},
		{"follow finished job", []string{"jobs", "follow", jobID}, "message=\"hi\"\nrepeat=1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := env.run(t, tt.args...)
			if err != nil {
				t.Fatalf("%v failed: %v", tt.args, err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("list", func(t *testing.T) {
		out, _, err := env.run(t, "jobs", "list", "--json", "--query", "greet")
		if err != nil {
			t.Fatalf("jobs list failed: %v", err)
		}
		var jobs []models.JobDetails
		if err := json.Unmarshal([]byte(out), &jobs); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(jobs) != 1 || jobs[0].ID != jobID || jobs[0].Name != "greeting" {
			t.Errorf("unexpected jobs: %+v", jobs)
		}
	})

	t.Run("inputs", func(t *testing.T) {
		out, _, err := env.run(t, "jobs", "inputs", jobID)
		if err != nil {
			t.Fatalf("jobs inputs failed: %v", err)
		}
		var inputs map[string]any
		if err := json.Unmarshal([]byte(out), &inputs); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if diff := cmp.Diff(map[string]any{"message": "hi", "repeat": float64(1)}, inputs); diff != "" {
			t.Errorf("inputs mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("get", func(t *testing.T) {
		out, _, err := env.run(t, "jobs", "get", jobID)
		if err != nil {
			t.Fatalf("jobs get failed: %v", err)
		}
		if !strings.Contains(out, jobID) || !strings.Contains(out, models.JobStatusFinished) {
			t.Errorf("jobs get output is missing the id or final status:\n%s", out)
		}
	})

	t.Run("download output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stdout.txt")
		if _, _, err := env.run(t, "jobs", "outputs", jobID, "--get", "stdout", "-o", path); err != nil {
			t.Fatalf("jobs outputs --get failed: %v", err)
		}
		assertFileContent(t, path, "message=\"hi\"\nrepeat=1\n")
	})

	t.Run("download output into directory", func(t *testing.T) {
		dir := t.TempDir()
		if _, _, err := env.run(t, "jobs", "outputs", jobID, "--get", "stdout", "-o", dir); err != nil {
			t.Fatalf("jobs outputs --get failed: %v", err)
		}
		assertFileContent(t, filepath.Join(dir, "stdout.txt"), "message=\"hi\"\nrepeat=1\n")
	})

	t.Run("download unknown output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x")
		_, _, err := env.run(t, "jobs", "outputs", jobID, "--get", "result", "-o", path)
		if err == nil || !strings.Contains(err.Error(), "has no output 'result'") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		if _, _, err := env.run(t, "jobs", "get", "missing"); !api.IsNotFound(err) {
			t.Errorf("jobs get missing: want not found error, got %v", err)
		}
	})
}

func TestJobsAbort(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{StepDelay: time.Hour})

	out, _, err := env.run(t, "submit", "--spec", "echo", "--interactive=false")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	jobID := strings.TrimSpace(out)

	out, _, err = env.run(t, "jobs", "abort", jobID)
	if err != nil {
		t.Fatalf("jobs abort failed: %v", err)
	}
	if !strings.Contains(out, "Abort requested") {
		t.Errorf("unexpected abort output: %q", out)
	}
	if got := env.waitFinished(t, jobID).LatestStatus(); got != models.JobStatusAborted {
		t.Errorf("status after abort = %s, want %s", got, models.JobStatusAborted)
	}
}

func TestConfigCommands(t *testing.T) {
	t.Setenv(config.EnvURL, "")
	t.Setenv(config.EnvUsername, "")
	t.Setenv(config.EnvPassword, "")
	path := filepath.Join(t.TempDir(), "jobson", "config")

	out, _, err := runCLI(t, "config", "init", "--config", path, "--interactive=false",
		"--url", "https://jobson.example.com/api", "--username", "alice", "--password", "s3cret")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("config init output does not name the file: %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "https://jobson.example.com/api" || cfg.Username != "alice" || cfg.Password != "s3cret" {
		t.Errorf("saved config = %+v", cfg)
	}

	out, _, err = runCLI(t, "config", "init", "--config", path, "--interactive=false")
	if err != nil {
		t.Fatalf("second config init failed: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("config init overwrote without --force: %q", out)
	}

	out, _, err = runCLI(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("config show printed the password:\n%s", out)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "********") {
		t.Errorf("config show output is missing fields:\n%s", out)
	}

	out, _, err = runCLI(t, "config", "path", "--config", path)
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(out), path)
	}
}

func TestConfigTest(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{Users: map[string]string{"alice": "pw"}})

	out, _, err := env.run(t, "config", "test", "--username", "alice", "--password", "pw")
	if err != nil {
		t.Fatalf("config test failed: %v", err)
	}
	if !strings.Contains(out, "Signed in as: alice") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, _, err := env.run(t, "config", "test", "--username", "alice", "--password", "wrong"); err == nil {
		t.Error("config test with a wrong password succeeded")
	}
}

func TestAskConfig(t *testing.T) {
	cfg := config.New()
	d := &scriptedDriver{answers: []any{
		"https://jobson.example.com/api", // URL
		"bob",                            // username
		"pw",                             // password
		true,                             // configure a proxy
		1,                                // basic
		"proxy.corp",                     // host
		"3128",                           // port
		"",                               // proxy user
	}}
	if err := askConfig(context.Background(), d, cfg); err != nil {
		t.Fatalf("askConfig failed: %v", err)
	}

	want := config.New()
	want.URL = "https://jobson.example.com/api"
	want.Username = "bob"
	want.Password = "pw"
	want.ProxyMode = config.ProxyModeBasic
	want.ProxyHost = "proxy.corp"
	want.ProxyPort = 3128
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if len(d.answers) != 0 {
		t.Errorf("%d answers left over", len(d.answers))
	}
}

func TestParseUsers(t *testing.T) {
	users, err := parseUsers([]string{"alice:pw", "bob:a:b"})
	if err != nil {
		t.Fatalf("parseUsers failed: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"alice": "pw", "bob": "a:b"}, users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"alice", ":pw"} {
		if _, err := parseUsers([]string{bad}); err == nil {
			t.Errorf("parseUsers(%q) succeeded", bad)
		}
	}
	if users, err := parseUsers(nil); err != nil || users != nil {
		t.Errorf("parseUsers(nil) = %v, %v", users, err)
	}
}
