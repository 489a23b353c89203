package server

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"story_feedback_collector/events"
	"story_feedback_collector/logging"
	"story_feedback_collector/review"
)

//go:embed web
var embeddedWeb embed.FS

const maxBodyBytes = 1 << 20

// Reviewer produces one feedback item per configured prompt.
type Reviewer interface {
	Review(ctx context.Context, apiKey, story, definitionOfDone string) ([]review.FeedbackItem, error)
	Prompts() []review.Prompt
}

// Appender persists one spreadsheet row.
type Appender interface {
	Append(ctx context.Context, row []string) error
}

type RateLimit struct {
	RPS   float64
	Burst int
}

type Deps struct {
	Reviewer  Reviewer
	Appender  Appender
	Notifier  events.Notifier
	Logger    *logging.Logger
	RateLimit RateLimit
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	reviewer  Reviewer
	appender  Appender
	notifier  events.Notifier
	logger    *logging.Logger
	limiter   *ipLimiter
	now       func() time.Time
	indexHTML []byte
	staticFS  http.Handler
}

func New(d Deps) (*Server, error) {
	if d.Reviewer == nil {
		return nil, errors.New("reviewer required")
	}
	if d.Appender == nil {
		return nil, errors.New("appender required")
	}
	if d.Notifier == nil {
		d.Notifier = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	sub, err := fs.Sub(embeddedWeb, "web")
	if err != nil {
		return nil, err
	}
	index, err := fs.ReadFile(sub, "index.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		reviewer:  d.Reviewer,
		appender:  d.Appender,
		notifier:  d.Notifier,
		logger:    d.Logger,
		limiter:   newIPLimiter(d.RateLimit.RPS, d.RateLimit.Burst),
		now:       d.Now,
		indexHTML: index,
		staticFS:  fileOnly(sub, http.FileServer(http.FS(sub))),
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, maxBodyBytes)
	})

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", s.staticFS)
	r.Get("/health", handleHealth)
	r.Get("/api/prompts", s.handlePrompts)

	r.Method(http.MethodPost, "/save-feedback", appHandler(s.handleSaveFeedback))
	r.With(s.limiter.middleware).Method(http.MethodPost, "/analyze", appHandler(s.handleAnalyze))
	return r
}

// fileOnly answers 404 for directory paths so the file server never lists them.
func fileOnly(fsys fs.FS, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == "." {
			http.NotFound(w, r)
			return
		}
		info, err := fs.Stat(fsys, name)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
