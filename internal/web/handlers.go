package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/classes"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/pipeline"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/state"
)

const (
	archiveDownloadName = "detections.zip"
	maxJobsLimit        = 500
)

// handleUpload scans an uploaded video for one class and answers with a zip
// of the annotated frames
func (s *Server) handleUpload(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, bindError(err, &form))
		return
	}
	classIndex, _ := classes.Lookup(form.ClassName)

	if s.space != nil {
		if err := s.space.CheckSpace(c.Request.Context()); err != nil {
			s.LogWarn("Rejecting upload, scratch space low", "error", err)
			respondError(c, &APIError{Status: http.StatusInsufficientStorage, Message: "Espacio en disco insuficiente", Err: err})
			return
		}
	}

	// Job ids are always ours. The request id is client controlled and may repeat.
	jobID := uuid.NewString()
	c.Header("X-Job-ID", jobID)

	ws, err := pipeline.NewWorkspace(s.scratchDir, jobID)
	if err != nil {
		respondError(c, internalError(errWorkspaceUnavailable, err))
		return
	}
	// The archive is streamed from the workspace, so it goes only after the response is written
	defer func() {
		if err := ws.Cleanup(); err != nil {
			s.LogWarn("Failed to remove workspace", "job_id", jobID, "error", err)
		}
	}()

	videoPath := ws.VideoPath(form.Video.Filename)
	if err := c.SaveUploadedFile(form.Video, videoPath); err != nil {
		if isTooLarge(err) {
			respondError(c, tooLargeError())
			return
		}
		respondError(c, internalError(errVideoNotSaved, err))
		return
	}

	ctx := c.Request.Context()
	s.recordStart(ctx, state.JobState{
		ID:         jobID,
		ClassName:  form.ClassName,
		ClassIndex: classIndex,
		FileName:   form.Video.Filename,
	})

	s.LogInfo("Processing upload",
		"job_id", jobID,
		"request_id", requestID(c),
		"class_name", form.ClassName,
		"file", form.Video.Filename,
		"size", form.Video.Size,
	)

	result, err := s.processor.Process(ctx, pipeline.Job{
		ID:         jobID,
		Label:      form.ClassName,
		ClassIndex: classIndex,
		VideoPath:  videoPath,
		Workspace:  ws,
	})
	if err != nil {
		s.recordFinish(jobID, state.JobOutcome{Status: state.JobStatusFailed, Error: err.Error()})
		respondError(c, processingError(err))
		return
	}

	location := s.publishArchive(ctx, jobID, result.ArchivePath)
	if location != "" {
		c.Header("X-Archive-Location", location)
	}

	s.recordFinish(jobID, state.JobOutcome{
		Status:          state.JobStatusCompleted,
		FramesScanned:   result.FramesScanned,
		FramesMatched:   result.FramesMatched,
		Detections:      len(result.Detections),
		ArchiveLocation: location,
	})

	c.Header("X-Frames-Scanned", strconv.Itoa(result.FramesScanned))
	c.Header("X-Detections", strconv.Itoa(len(result.Detections)))
	c.Header("Content-Type", "application/zip")
	c.FileAttachment(result.ArchivePath, archiveDownloadName)
}

// publishArchive returns the archive's location, or "" when publishing is off or failed
func (s *Server) publishArchive(ctx context.Context, jobID, archivePath string) string {
	if s.publisher == nil {
		return ""
	}
	location, err := s.publisher.Publish(ctx, jobID, archivePath)
	if err != nil {
		s.LogError("Failed to publish archive", err, "job_id", jobID)
		return ""
	}
	return location
}

func (s *Server) recordStart(ctx context.Context, job state.JobState) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.LogWarn("Failed to record job", "job_id", job.ID, "error", err)
	}
}

// recordFinish runs detached from the request so a client that went away
// still leaves a finished row behind
func (s *Server) recordFinish(jobID string, outcome state.JobOutcome) {
	if s.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.FinishJob(ctx, jobID, outcome); err != nil && !errors.Is(err, state.ErrJobNotFound) {
		s.LogWarn("Failed to update job", "job_id", jobID, "error", err)
	}
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "web-server",
	})
}

// handleStatus handles the system status endpoint
func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.startTime)

	health := "healthy"
	if s.GetStatus().GetStatus() != service.StatusRunning {
		health = "unhealthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          health,
		"version":         s.version,
		"uptime":          uptime.String(),
		"uptime_seconds":  int64(uptime.Seconds()),
		"timestamp":       time.Now().Format(time.RFC3339),
		"jobs_enabled":    s.jobs != nil,
		"publish_enabled": s.publisher != nil,
	})
}

func (s *Server) handleListClasses(c *gin.Context) {
	all := classes.All()
	c.JSON(http.StatusOK, gin.H{
		"classes": all,
		"count":   len(all),
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	if s.jobs == nil {
		respondError(c, errJobsDisabled)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, &APIError{Status: http.StatusBadRequest, Message: "Parámetro limit inválido: " + raw})
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := s.jobs.ListJobs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []state.JobState{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	if s.jobs == nil {
		respondError(c, errJobsDisabled)
		return
	}

	id := c.Param("id")
	job, err := s.jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, state.ErrJobNotFound) {
		respondError(c, &APIError{Status: http.StatusNotFound, Message: "Trabajo no encontrado: " + id, Err: err})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

var errJobsDisabled = &APIError{
	Status:  http.StatusServiceUnavailable,
	Message: "El historial de trabajos no está habilitado",
}
