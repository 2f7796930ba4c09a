package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lazypower/memkeeper/internal/auth"
	"github.com/lazypower/memkeeper/internal/images"
	"github.com/lazypower/memkeeper/internal/store"
)

// Options wires the server's dependencies.
type Options struct {
	Store  store.Store
	Tokens *auth.Issuer
	Users  *auth.UserCache
	Hasher auth.Hasher

	// Images receives uploaded files. Nil disables uploads; files are
	// skipped and logged.
	Images images.Uploader
	// UploadDir, when set, is served read-only under /uploads/.
	UploadDir      string
	MaxUploadBytes int64

	CORSOrigins []string
	Logger      *slog.Logger
	Version     string
}

// Server is the memkeeper HTTP API server.
type Server struct {
	store     store.Store
	tokens    *auth.Issuer
	users     *auth.UserCache
	hasher    auth.Hasher
	images    images.Uploader
	uploadDir string
	maxUpload int64
	maxBody   int64
	origins   []string
	log       *slog.Logger
	router    chi.Router
	version   string
	started   time.Time
}

// maxFilesPerRequest bounds a memory request body to this many full-size
// uploads plus form overhead.
const maxFilesPerRequest = 8

// New creates a Server from opts.
func New(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		tokens:    opts.Tokens,
		users:     opts.Users,
		hasher:    opts.Hasher,
		images:    opts.Images,
		uploadDir: opts.UploadDir,
		maxUpload: opts.MaxUploadBytes,
		origins:   opts.CORSOrigins,
		log:       opts.Logger,
		version:   opts.Version,
		started:   time.Now(),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 10 << 20
	}
	s.maxBody = maxFilesPerRequest*s.maxUpload + 1<<20
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/ping", s.handlePing)
	r.Get("/api/health", s.handleHealth)

	r.Post("/register", s.handleRegister)
	r.Post("/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.handleMe)
		r.Put("/me/pin", s.handleSetPIN)

		r.Get("/memories", s.handleListMemories)
		r.Get("/memories/", s.handleListMemories)
		r.Post("/memories", s.handleCreateMemory)
		r.Post("/memories/", s.handleCreateMemory)
		r.Get("/memories/{memoryID}", s.handleGetMemory)

		r.Group(func(r chi.Router) {
			r.Use(s.requirePIN)
			r.Put("/memories/{memoryID}", s.handleUpdateMemory)
			r.Delete("/memories/{memoryID}", s.handleDeleteMemory)
			r.Delete("/memories/images/{imageID}", s.handleDeleteImage)
		})
	})

	if s.uploadDir != "" {
		r.Handle(images.URLPrefix+"*", http.StripPrefix(images.URLPrefix, uploadsHandler(s.uploadDir)))
	}

	r.Get("/", s.handleRoot)
	r.NotFound(s.handleNotFound)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping(r.Context()) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"driver":  s.store.Driver(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Server is awake!",
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if uiFS == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Memory Keeper API"})
		return
	}
	spaHandler()(w, r)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if uiFS != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		spaHandler()(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "Not Found")
}
