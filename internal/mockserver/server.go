// Package mockserver is a small Jobson-compatible backend. It serves the /v1
// REST and websocket API from a fixed set of job specs and runs submitted jobs
// by echoing their inputs.
package mockserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

const (
	// DefaultBasePath matches the default client URL http://localhost:8080/api.
	DefaultBasePath    = "/api"
	defaultStepDelay   = 2 * time.Second
	defaultIdleTimeout = 30 * time.Second
	defaultPageSize    = 20
	maxRequestBody     = 256 << 20
	guestUser          = "guest"
)

// Options configures a Server.
type Options struct {
	Specs []models.JobSpec
	// Users maps usernames to passwords. When empty, requests are not
	// authenticated and run as "guest".
	Users map[string]string
	// BasePath prefixes every route. Use "/" to serve at the root.
	BasePath string
	// StepDelay is the time a job spends in each status.
	StepDelay time.Duration
	// IdleTimeout closes websocket subscriptions that have been silent this
	// long, the way the real server does.
	IdleTimeout time.Duration
}

// Server handles the Jobson API.
type Server struct {
	opts   Options
	specs  map[string]models.JobSpec
	store  *Store
	bus    *events.EventBus
	runner *runner
	log    *logging.Logger
}

// New creates a server backed by store.
func New(store *Store, opts Options, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Named("mockserver")
	if opts.BasePath == "" {
		opts.BasePath = DefaultBasePath
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = defaultStepDelay
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}

	specs := make(map[string]models.JobSpec, len(opts.Specs))
	for _, s := range opts.Specs {
		if _, ok := specs[s.ID]; ok {
			return nil, fmt.Errorf("duplicate job spec %q", s.ID)
		}
		specs[s.ID] = s
		for _, in := range s.ExpectedInputs {
			if !editor.IsSupportedType(in.Type) {
				log.Warn().Str("spec", s.ID).Str("input", in.ID).Str("type", in.Type).
					Msg("Clients cannot edit this input type")
			}
		}
	}

	bus := events.NewEventBus(1024)
	return &Server{
		opts:   opts,
		specs:  specs,
		store:  store,
		bus:    bus,
		runner: newRunner(store, bus, log, opts.StepDelay),
		log:    log,
	}, nil
}

// Close aborts running jobs and ends every subscription.
func (s *Server) Close() {
	s.runner.close()
	s.bus.Close()
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	api := func(r chi.Router) {
		r.Use(s.authenticate)
		r.Route("/v1", func(r chi.Router) {
			r.Get("/", s.handleRoot)
			r.Get("/users/current", s.handleCurrentUser)
			r.Get("/specs", s.handleListSpecs)
			r.Get("/specs/{specID}", s.handleGetSpec)
			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs", s.handleSubmit)
			r.Get("/jobs/events", s.handleJobEvents)
			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Get("/inputs", s.handleGetInputs)
				r.Get("/spec", s.handleGetJobSpec)
				r.Post("/abort", s.handleAbort)
				r.Get("/stdout", s.handleOutput(StreamStdout))
				r.Get("/stderr", s.handleOutput(StreamStderr))
				r.Get("/stdout/updates", s.handleOutputUpdates(StreamStdout))
				r.Get("/stderr/updates", s.handleOutputUpdates(StreamStderr))
				r.Get("/outputs", s.handleListOutputs)
				r.Get("/outputs/{outputID}", s.handleGetOutput)
			})
		})
	}

	if base := strings.TrimSuffix(s.opts.BasePath, "/"); base != "" {
		r.Route(base, api)
	} else {
		r.Group(api)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

type userKey struct{}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func userFrom(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok {
		return u
	}
	return guestUser
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := guestUser
		if len(s.opts.Users) > 0 {
			name, password, ok := r.BasicAuth()
			want, known := s.opts.Users[name]
			if !ok || !known || subtle.ConstantTimeCompare([]byte(password), []byte(want)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="jobson"`)
				writeError(w, http.StatusUnauthorized, "invalid username or password")
				return
			}
			user = name
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func (s *Server) link(path string) models.RESTLink {
	base := strings.TrimSuffix(s.opts.BasePath, "/")
	return models.RESTLink{Href: base + "/v1" + path}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"_links": map[string]models.RESTLink{
			"specs":        s.link("/specs"),
			"jobs":         s.link("/jobs"),
			"current-user": s.link("/users/current"),
		},
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.UserID{ID: userFrom(r.Context())})
}

func (s *Server) handleListSpecs(w http.ResponseWriter, r *http.Request) {
	coll := models.JobSpecSummaryCollection{Entries: make([]models.JobSpecSummary, 0, len(s.opts.Specs))}
	for _, spec := range s.opts.Specs {
		coll.Entries = append(coll.Entries, models.JobSpecSummary{
			ID:          spec.ID,
			Name:        spec.Name,
			Description: spec.Description,
			Links:       map[string]models.RESTLink{"details": s.link("/specs/"+spec.ID)},
		})
	}
	writeJSON(w, http.StatusOK, coll)
}

func (s *Server) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "specID")
	spec, ok := s.specs[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job spec '%s' does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page: %s", raw))
			return
		}
		page = n
	}

	jobs, err := s.store.Jobs(r.Context(), query, page, defaultPageSize)
	if err != nil {
		s.internalError(w, err)
		return
	}
	for i := range jobs {
		jobs[i].Links = s.jobLinks(jobs[i].ID)
	}

	coll := models.JobDetailsCollection{Entries: jobs}
	if len(jobs) == defaultPageSize {
		next := fmt.Sprintf("/jobs?page=%d", page+1)
		if query != "" {
			next += "&query=" + url.QueryEscape(query)
		}
		coll.Links = map[string]models.RESTLink{"next": s.link(next)}
	}
	writeJSON(w, http.StatusOK, coll)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	var req models.JobRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not a valid job request: "+err.Error())
		return
	}

	spec, ok := s.specs[req.Spec]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job spec '%s' does not exist", req.Spec))
		return
	}
	if msg := validateRequest(spec, req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = models.DefaultJobName
	}

	id := uuid.NewString()
	if err := s.store.CreateJob(r.Context(), id, userFrom(r.Context()), req, time.Now()); err != nil {
		s.internalError(w, err)
		return
	}
	s.log.Info().Str("job", id).Str("spec", spec.ID).Str("name", req.Name).Msg("Job submitted")
	s.bus.PublishJobStatus(id, StatusSubmitted)
	s.runner.start(id, spec, req)

	writeJSON(w, http.StatusOK, models.JobCreatedResponse{ID: id, Links: s.jobLinks(id)})
}

// validateRequest checks that every input without a default is supplied and
// that no undeclared input is.
func validateRequest(spec models.JobSpec, req models.JobRequest) string {
	var problems []string
	declared := make(map[string]bool, len(spec.ExpectedInputs))
	for _, in := range spec.ExpectedInputs {
		declared[in.ID] = true
		if v, ok := req.Inputs[in.ID]; (!ok || v == nil) && !in.HasDefault() {
			problems = append(problems, fmt.Sprintf("input '%s' is missing", in.ID))
		}
	}
	for id := range req.Inputs {
		if !declared[id] {
			problems = append(problems, fmt.Sprintf("input '%s' is not expected by job spec '%s'", id, spec.ID))
		}
	}
	return strings.Join(problems, "; ")
}

func (s *Server) jobLinks(id string) map[string]models.RESTLink {
	return map[string]models.RESTLink{
		"self":    s.link("/jobs/"+id),
		"inputs":  s.link("/jobs/"+id+"/inputs"),
		"spec":    s.link("/jobs/"+id+"/spec"),
		"stdout":  s.link("/jobs/"+id+"/stdout"),
		"stderr":  s.link("/jobs/"+id+"/stderr"),
		"outputs": s.link("/jobs/"+id+"/outputs"),
		"abort":   s.link("/jobs/"+id+"/abort"),
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.store.Job(r.Context(), id)
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	job.Links = s.jobLinks(id)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetInputs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	req, err := s.store.Request(r.Context(), id)
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Inputs)
}

func (s *Server) handleGetJobSpec(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	req, err := s.store.Request(r.Context(), id)
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	spec, ok := s.specs[req.Spec]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job spec '%s' no longer exists", req.Spec))
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := s.store.Job(r.Context(), id); err != nil {
		s.storeError(w, id, err)
		return
	}
	if err := s.runner.abort(id); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job '%s' is not running", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOutput(stream string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		data, ok, err := s.store.Output(r.Context(), id, stream)
		if err != nil {
			s.storeError(w, id, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job '%s' has no %s", id, stream))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	coll := models.JobOutputCollection{Entries: []models.JobOutput{}}
	for _, stream := range []string{StreamStdout, StreamStderr} {
		data, ok, err := s.store.Output(r.Context(), id, stream)
		if err != nil {
			s.storeError(w, id, err)
			return
		}
		if !ok {
			continue
		}
		coll.Entries = append(coll.Entries, models.JobOutput{
			ID:       stream,
			Size:     int64(len(data)),
			MimeType: "text/plain",
			Name:     stream + ".txt",
			Links:    map[string]models.RESTLink{"self": s.link("/jobs/"+id+"/outputs/"+stream)},
		})
	}
	writeJSON(w, http.StatusOK, coll)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	outputID := chi.URLParam(r, "outputID")
	if outputID != StreamStdout && outputID != StreamStderr {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job '%s' has no output '%s'", id, outputID))
		return
	}
	data, ok, err := s.store.Output(r.Context(), id, outputID)
	if err != nil {
		s.storeError(w, id, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job '%s' has no output '%s'", id, outputID))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) storeError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job '%s' does not exist", id))
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.APIErrorMessage{Code: status, Message: message})
}
