package filesource

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jobson/jobson-cli/internal/config"
	jhttp "github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		location string
		want     Location
		wantErr  bool
	}{
		{
			location: "data/input.csv",
			want:     Location{Kind: KindLocal, Path: "data/input.csv"},
		},
		{
			location: "file:///tmp/input.csv",
			want:     Location{Kind: KindLocal, Path: "/tmp/input.csv"},
		},
		{
			location: "s3://my-bucket/runs/42/input.csv",
			want:     Location{Kind: KindS3, Bucket: "my-bucket", Path: "runs/42/input.csv"},
		},
		{
			location: "https://acct.blob.core.windows.net/inputs/run/input.csv?sv=2022&sig=abc",
			want: Location{
				Kind:       KindAzureBlob,
				Bucket:     "inputs",
				Path:       "run/input.csv",
				ServiceURL: "https://acct.blob.core.windows.net/?sv=2022&sig=abc",
			},
		},
		{location: "s3://bucket-only", wantErr: true},
		{location: "s3:///key", wantErr: true},
		{location: "https://example.com/file.csv", wantErr: true},
		{location: "https://acct.blob.core.windows.net/container-only", wantErr: true},
		{location: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := Parse(tt.location)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("location mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocationFilename(t *testing.T) {
	loc, _ := Parse("s3://bucket/a/b/report.pdf")
	if loc.Filename() != "report.pdf" {
		t.Errorf("Filename() = %q", loc.Filename())
	}
}

func TestLoad_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(p, []byte("hello"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := NewLoader(config.New(), nil)
	got, err := l.Load(context.Background(), p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := models.FileInput{Filename: "input.txt", Data: base64.StdEncoding.EncodeToString([]byte("hello"))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file input mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_LocalErrors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(big, make([]byte, 100), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := NewLoader(config.New(), nil, WithMaxSize(10))

	if _, err := l.Load(context.Background(), big); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := l.Load(context.Background(), filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := l.Load(context.Background(), dir); err == nil {
		t.Error("expected error for a directory")
	}
}

func TestLoad_S3(t *testing.T) {
	content := []byte("a,b\n1,2\n")
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/inputs/runs/data.csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content)
	}))
	defer srv.Close()

	cfg := config.New()
	cfg.AWSRegion = "us-east-1"
	cfg.AWSAccessKeyID = "AKIDEXAMPLE"
	cfg.AWSSecretAccessKey = "secret"
	cfg.S3Endpoint = srv.URL

	l := NewLoader(cfg, nil, WithRetry(jhttp.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name, data, err := l.Read(ctx, "s3://inputs/runs/data.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if name != "data.csv" || string(data) != string(content) {
		t.Errorf("Read() = %q, %q", name, data)
	}
}
