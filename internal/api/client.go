// Package api is the client for the Jobson HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/jobson/jobson-cli/internal/config"
	"github.com/jobson/jobson-cli/internal/http"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

// retryLogger implements retryablehttp.LeveledLogger on top of zerolog.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

// Client talks to a Jobson server.
type Client struct {
	httpClient *nethttp.Client
	wsDialer   *websocket.Dialer
	config     *config.Config
	baseURL    string
	tracker    *RequestTracker
	log        *logging.Logger
}

// NewClient creates a client for the server configured in cfg. tracker and
// log may be nil.
func NewClient(cfg *config.Config, tracker *RequestTracker, log *logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Named("api")

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("API base URL is empty: %w", config.ErrMissingURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", baseURL, err)
	}

	httpClient, err := http.ConfigureHTTPClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Failed requests surface to the user, who decides whether to retry.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 0
	retryClient.CheckRetry = func(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
		return false, ctx.Err()
	}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{log: log}
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *nethttp.Request, attempt int) {
		log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("attempt", attempt).Msg("API request")
	}
	retryClient.ResponseLogHook = func(_ retryablehttp.Logger, resp *nethttp.Response) {
		log.Debug().Str("method", resp.Request.Method).Str("url", resp.Request.URL.String()).Int("status", resp.StatusCode).Msg("API response")
	}

	if tracker == nil {
		tracker = NewRequestTracker(nil)
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		wsDialer: &websocket.Dialer{
			Proxy:            http.ProxyURL(cfg, log),
			HandshakeTimeout: http.APITimeout,
		},
		config:  cfg,
		baseURL: baseURL,
		tracker: tracker,
		log:     log,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tracker returns the tracker counting this client's requests.
func (c *Client) Tracker() *RequestTracker {
	return c.tracker
}

func (c *Client) authenticate(header nethttp.Header) {
	if c.config.Username == "" {
		return
	}
	creds := c.config.Username + ":" + c.config.Password
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
}

// doRequest performs an API call and returns the response when its status is
// 2xx. Any other outcome is an *Error, except cancellation of ctx.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, accept string) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	c.authenticate(req.Header)

	done := c.tracker.Begin()
	defer done()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, &Error{Code: 0, Message: connectionErrorMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := errorFromResponse(resp)
		c.log.Debug().Str("method", method).Str("path", path).Int("status", apiErr.Code).Str("message", apiErr.Message).Msg("API call rejected")
		return nil, apiErr
	}
	return resp, nil
}

// doJSON performs an API call and decodes the JSON response into out. Numbers
// inside untyped values decode as json.Number.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Code: resp.StatusCode, Message: "Error", Err: fmt.Errorf("failed to decode response from %s: %w", path, err)}
	}
	return nil
}

func jobPath(jobID string, sub ...string) string {
	p := "/v1/jobs/" + url.PathEscape(jobID)
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

// FetchJobSpecSummaries lists the job specs the server offers.
func (c *Client) FetchJobSpecSummaries(ctx context.Context) ([]models.JobSpecSummary, error) {
	var coll models.JobSpecSummaryCollection
	if err := c.doJSON(ctx, "GET", "/v1/specs", nil, &coll); err != nil {
		return nil, err
	}
	return coll.Entries, nil
}

// FetchJobSpec gets a full job spec.
func (c *Client) FetchJobSpec(ctx context.Context, specID string) (*models.JobSpec, error) {
	var spec models.JobSpec
	if err := c.doJSON(ctx, "GET", "/v1/specs/"+url.PathEscape(specID), nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// FetchJobSummaries lists jobs, optionally filtered by a free-text query.
// Pages start at 0.
func (c *Client) FetchJobSummaries(ctx context.Context, query string, page int) (*models.JobDetailsCollection, error) {
	params := url.Values{}
	if query != "" {
		params.Set("query", query)
	}
	params.Set("page", strconv.Itoa(page))

	var coll models.JobDetailsCollection
	if err := c.doJSON(ctx, "GET", "/v1/jobs?"+params.Encode(), nil, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}

// SubmitJobRequest creates a job.
func (c *Client) SubmitJobRequest(ctx context.Context, req models.JobRequest) (*models.JobCreatedResponse, error) {
	var created models.JobCreatedResponse
	if err := c.doJSON(ctx, "POST", "/v1/jobs", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// FetchJobDetails gets a job's details and status history.
func (c *Client) FetchJobDetails(ctx context.Context, jobID string) (*models.JobDetails, error) {
	var details models.JobDetails
	if err := c.doJSON(ctx, "GET", jobPath(jobID), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// FetchJobInputs gets the inputs a job was submitted with.
func (c *Client) FetchJobInputs(ctx context.Context, jobID string) (map[string]any, error) {
	inputs := map[string]any{}
	if err := c.doJSON(ctx, "GET", jobPath(jobID, "inputs"), nil, &inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}

// FetchJobSpecForJob gets the spec a job was submitted against, as it was at
// submission time.
func (c *Client) FetchJobSpecForJob(ctx context.Context, jobID string) (*models.JobSpec, error) {
	var spec models.JobSpec
	if err := c.doJSON(ctx, "GET", jobPath(jobID, "spec"), nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// FetchJobStdout returns the job's standard output. A job that has not
// written any output yet returns nil.
func (c *Client) FetchJobStdout(ctx context.Context, jobID string) ([]byte, error) {
	return c.fetchRaw(ctx, jobPath(jobID, "stdout"))
}

// FetchJobStderr returns the job's standard error. A job that has not
// written any output yet returns nil.
func (c *Client) FetchJobStderr(ctx context.Context, jobID string) ([]byte, error) {
	return c.fetchRaw(ctx, jobPath(jobID, "stderr"))
}

func (c *Client) fetchRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, "GET", path, nil, "")
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Code: 0, Message: connectionErrorMessage, Err: err}
	}
	return data, nil
}

// FetchJobOutputs lists the outputs a job produced.
func (c *Client) FetchJobOutputs(ctx context.Context, jobID string) ([]models.JobOutput, error) {
	var coll models.JobOutputCollection
	if err := c.doJSON(ctx, "GET", jobPath(jobID, "outputs"), nil, &coll); err != nil {
		return nil, err
	}
	return coll.Entries, nil
}

// DownloadJobOutput copies one job output to w and returns the bytes written.
func (c *Client) DownloadJobOutput(ctx context.Context, jobID, outputID string, w io.Writer) (int64, error) {
	resp, err := c.doRequest(ctx, "GET", jobPath(jobID, "outputs", url.PathEscape(outputID)), nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download output %s: %w", outputID, err)
	}
	return n, nil
}

// FetchCurrentUser returns the id of the authenticated user.
func (c *Client) FetchCurrentUser(ctx context.Context) (string, error) {
	var user models.UserID
	if err := c.doJSON(ctx, "GET", "/v1/users/current", nil, &user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// AbortJob asks the server to stop a running job.
func (c *Client) AbortJob(ctx context.Context, jobID string) error {
	err := c.doJSON(ctx, "POST", jobPath(jobID, "abort"), struct{}{}, nil)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Code == nethttp.StatusBadRequest {
		return fmt.Errorf("job %s cannot be aborted: %w", jobID, err)
	}
	return err
}
