// Package filesource loads the content of file inputs from local disk, S3 or
// Azure Blob Storage and encodes it the way a job request carries files.
package filesource

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/localpath"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
	"github.com/jobson/jobson-cli/internal/progress"
)

// DefaultMaxSize bounds the size of a single file input.
const DefaultMaxSize = 64 << 20

// progressThreshold is the smallest download that gets a progress bar.
const progressThreshold = 1 << 20

// ErrTooLarge is returned for files larger than the configured limit.
var ErrTooLarge = errors.New("file is too large to submit as a job input")

// Kind names where a location points.
type Kind int

const (
	KindLocal Kind = iota
	KindS3
	KindAzureBlob
)

func (k Kind) String() string {
	switch k {
	case KindS3:
		return "s3"
	case KindAzureBlob:
		return "azure-blob"
	default:
		return "local"
	}
}

// Location is a parsed file input source.
type Location struct {
	Kind Kind
	// Path is the local path, the S3 key or the blob name.
	Path string
	// Bucket is the S3 bucket or the Azure container.
	Bucket string
	// ServiceURL is the Azure account endpoint including any SAS query.
	ServiceURL string
}

// Filename returns the base name submitted with the file.
func (l Location) Filename() string {
	if l.Kind == KindLocal {
		return filepath.Base(l.Path)
	}
	return path.Base(l.Path)
}

// Parse classifies a location. s3://bucket/key is S3, an https URL on
// *.blob.core.windows.net is Azure Blob Storage, and anything else (optionally
// prefixed with file://) is a local path.
func Parse(location string) (Location, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		rest := strings.TrimPrefix(location, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid S3 location %q: expected s3://bucket/key", location)
		}
		return Location{Kind: KindS3, Bucket: bucket, Path: key}, nil

	case strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://"):
		u, err := url.Parse(location)
		if err != nil {
			return Location{}, fmt.Errorf("invalid URL %q: %w", location, err)
		}
		if !strings.HasSuffix(u.Hostname(), ".blob.core.windows.net") {
			return Location{}, fmt.Errorf("unsupported file location %q: only Azure Blob Storage URLs are supported", location)
		}
		container, blob, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if !ok || container == "" || blob == "" {
			return Location{}, fmt.Errorf("invalid blob URL %q: expected https://account.blob.core.windows.net/container/blob", location)
		}
		service := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/", RawQuery: u.RawQuery}
		return Location{Kind: KindAzureBlob, Bucket: container, Path: blob, ServiceURL: service.String()}, nil

	default:
		p := strings.TrimPrefix(location, "file://")
		if p == "" {
			return Location{}, errors.New("empty file location")
		}
		return Location{Kind: KindLocal, Path: p}, nil
	}
}

// opener streams the content of one kind of location.
type opener interface {
	open(ctx context.Context, loc Location) (io.ReadCloser, int64, error)
}

// Loader reads file inputs. Remote stores are only contacted, and their
// clients built, when a location needs them.
type Loader struct {
	cfg         *config.Config
	log         *logging.Logger
	maxSize     int64
	retry       http.RetryConfig
	newReporter func() progress.Reporter

	mu      sync.Mutex
	openers map[Kind]opener
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(l *Loader) { l.maxSize = n }
}

// WithProgress shows a progress bar for large remote downloads.
func WithProgress(newReporter func() progress.Reporter) Option {
	return func(l *Loader) { l.newReporter = newReporter }
}

// WithRetry overrides the retry settings for remote downloads.
func WithRetry(cfg http.RetryConfig) Option {
	return func(l *Loader) { l.retry = cfg }
}

// NewLoader creates a loader using the storage and proxy settings of cfg.
func NewLoader(cfg *config.Config, log *logging.Logger, opts ...Option) *Loader {
	if log == nil {
		log = logging.Nop()
	}
	l := &Loader{
		cfg:         cfg,
		log:         log.Named("filesource"),
		maxSize:     DefaultMaxSize,
		retry:       http.DefaultRetryConfig(),
		newReporter: func() progress.Reporter { return progress.NoOpProgress{} },
		openers:     map[Kind]opener{KindLocal: localOpener{}},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) openerFor(ctx context.Context, kind Kind) (opener, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if o, ok := l.openers[kind]; ok {
		return o, nil
	}

	var (
		o   opener
		err error
	)
	switch kind {
	case KindS3:
		o, err = newS3Opener(ctx, l.cfg, l.log)
	case KindAzureBlob:
		o, err = newAzureOpener(l.cfg, l.log)
	default:
		err = fmt.Errorf("no reader for %s locations", kind)
	}
	if err != nil {
		return nil, err
	}
	l.openers[kind] = o
	return o, nil
}

// Read returns the content of location.
func (l *Loader) Read(ctx context.Context, location string) (string, []byte, error) {
	loc, err := Parse(location)
	if err != nil {
		return "", nil, err
	}
	o, err := l.openerFor(ctx, loc.Kind)
	if err != nil {
		return "", nil, err
	}

	var data []byte
	read := func() error {
		rc, size, err := o.open(ctx, loc)
		if err != nil {
			return err
		}
		defer rc.Close()

		if size > l.maxSize {
			return fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, location, size, l.maxSize)
		}

		var r io.Reader = rc
		if loc.Kind != KindLocal && size >= progressThreshold {
			rep := l.newReporter()
			rep.Start(size, loc.Filename())
			defer rep.Finish()
			r = progress.NewProgressReader(rc, rep)
		}

		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(r, l.maxSize+1))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", location, err)
		}
		if n > l.maxSize {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, location, l.maxSize)
		}
		data = buf.Bytes()
		return nil
	}

	if loc.Kind == KindLocal {
		err = read()
	} else {
		retry := l.retry
		retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
			l.log.Warn().Err(err).Int("attempt", attempt).Str("type", errType.String()).Str("location", location).Msg("Retrying download")
		}
		err = http.ExecuteWithRetry(ctx, retry, read)
	}
	if err != nil {
		return "", nil, err
	}

	l.log.Debug().Str("location", location).Int("bytes", len(data)).Msg("Loaded file input")
	return loc.Filename(), data, nil
}

// Load reads location and returns it as a file input value.
func (l *Loader) Load(ctx context.Context, location string) (models.FileInput, error) {
	name, data, err := l.Read(ctx, location)
	if err != nil {
		return models.FileInput{}, err
	}
	return models.FileInput{
		Filename: name,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

type localOpener struct{}

func (localOpener) open(_ context.Context, loc Location) (io.ReadCloser, int64, error) {
	p, err := localpath.Expand(loc.Path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", loc.Path)
	}
	return f, info.Size(), nil
}
