package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/pipeline"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/state"
)

// Server represents the web server service
type Server struct {
	*service.ServiceBase
	config     config.ServerConfig
	scratchDir string
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	processor  JobProcessor
	jobs       JobStore         // Optional job history
	publisher  ArchivePublisher // Optional archive publication
	space      SpaceChecker     // Optional scratch space guard
	limiter    *ipRateLimiter   // nil when rate limiting is disabled
	version    string
	startTime  time.Time
}

// JobProcessor runs one upload through the detection pipeline
type JobProcessor interface {
	Process(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
}

// JobStore persists job summaries
type JobStore interface {
	CreateJob(ctx context.Context, job state.JobState) error
	FinishJob(ctx context.Context, id string, outcome state.JobOutcome) error
	GetJob(ctx context.Context, id string) (*state.JobState, error)
	ListJobs(ctx context.Context, limit int) ([]state.JobState, error)
}

// ArchivePublisher copies a finished archive somewhere durable and returns its location
type ArchivePublisher interface {
	Publish(ctx context.Context, jobID, archivePath string) (string, error)
}

// SpaceChecker reports whether the scratch filesystem can take another upload
type SpaceChecker interface {
	CheckSpace(ctx context.Context) error
}

// NewServer creates a new web server service. Uploads are processed in
// per-job workspaces under scratchDir.
func NewServer(cfg config.ServerConfig, scratchDir string, processor JobProcessor, log *logger.Logger) *Server {
	// Debug mode can be enabled via GIN_MODE environment variable
	if os.Getenv(gin.EnvGinMode) == "" && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))

	s := &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		scratchDir:  scratchDir,
		logger:      log,
		router:      router,
		processor:   processor,
		version:     "dev",
		startTime:   time.Now(),
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.setupRoutes()
	return s
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetJobStore enables the job history endpoints and per-upload bookkeeping
func (s *Server) SetJobStore(store JobStore) {
	s.jobs = store
}

// SetPublisher enables archive publication after each successful upload
func (s *Server) SetPublisher(publisher ArchivePublisher) {
	s.publisher = publisher
}

// SetSpaceChecker makes uploads fail fast with 507 when scratch space runs out
func (s *Server) SetSpaceChecker(space SpaceChecker) {
	s.space = space
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Address()

	// WriteTimeout stays unset unless configured: responses are sent only
	// after the whole video has been processed.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.GetStatus().SetError(err)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", addr)
			s.GetStatus().SetError(err)
		}
	}()

	s.GetStatus().SetStatus(service.StatusRunning)
	s.LogInfo("Web server started", "address", addr, "scratch_dir", s.scratchDir)
	return nil
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	s.GetStatus().SetStatus(service.StatusStopping)
	err := s.httpServer.Shutdown(ctx)
	s.GetStatus().SetStatus(service.StatusStopped)
	return err
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	upload := []gin.HandlerFunc{maxBodyMiddleware(s.config.MaxUploadBytes())}
	if s.limiter != nil {
		upload = append([]gin.HandlerFunc{rateLimitMiddleware(s.limiter)}, upload...)
	}
	upload = append(upload, s.handleUpload)

	s.router.POST("/upload", upload...)
	s.router.POST("/upload/", upload...)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/classes", s.handleListClasses)
		api.POST("/upload", upload...)

		jobs := api.Group("/jobs")
		{
			jobs.GET("", s.handleListJobs)
			jobs.GET("/:id", s.handleGetJob)
		}
	}

	s.router.GET("/ws/progress", s.handleProgress)

	s.router.NoRoute(func(c *gin.Context) {
		respondError(c, &APIError{Status: http.StatusNotFound, Message: "Recurso no encontrado"})
	})
}
