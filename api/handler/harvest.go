package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/webhook"
)

// jobTTL is how long finished jobs stay queryable.
const jobTTL = time.Hour

// JobStore holds in-flight and finished harvest jobs. It is safe for
// concurrent use.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.HarvestJob
	active int
	max    int
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobStore creates a store admitting at most max concurrent jobs
// (0 means unbounded) and starts the expiry sweep.
func NewJobStore(max int) *JobStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &JobStore{
		jobs:   make(map[string]*models.HarvestJob),
		max:    max,
		ctx:    ctx,
		cancel: cancel,
	}
	go s.expireLoop()
	return s
}

// Active returns the number of running jobs.
func (s *JobStore) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Max returns the concurrent job limit; 0 means unbounded.
func (s *JobStore) Max() int { return s.max }

// Shutdown waits for running jobs to finish, cancelling them if ctx ends
// first, and stops the expiry sweep.
func (s *JobStore) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

var errTooManyJobs = errors.New("too many running harvest jobs")

// start registers a new job, or fails when the store is full.
func (s *JobStore) start(req *models.HarvestRequest) (*models.HarvestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && s.active >= s.max {
		return nil, errTooManyJobs
	}
	job := &models.HarvestJob{
		ID:        "harvest-" + randomID(),
		Status:    models.JobProcessing,
		URL:       req.URL,
		Mode:      req.Mode,
		CreatedAt: time.Now().Unix(),
	}
	s.jobs[job.ID] = job
	s.active++
	s.wg.Add(1)
	metrics.ActiveJobs.Inc()
	return job, nil
}

// finish records the outcome of a job and returns its final snapshot.
func (s *JobStore) finish(id string, update func(job *models.HarvestJob)) models.HarvestStatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	update(job)
	s.active--
	s.wg.Done()
	metrics.ActiveJobs.Dec()
	return snapshot(job)
}

// Get returns a snapshot of job id.
func (s *JobStore) Get(id string) (models.HarvestStatusResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.HarvestStatusResponse{}, false
	}
	return snapshot(job), true
}

func snapshot(job *models.HarvestJob) models.HarvestStatusResponse {
	return models.HarvestStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		URL:        job.URL,
		Mode:       job.Mode,
		Downloaded: job.Downloaded,
		Failed:     job.Failed,
		Downloads:  job.Downloads,
		Products:   job.Products,
		Error:      job.Error,
	}
}

// expire drops finished jobs created before cutoff.
func (s *JobStore) expire(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.Status != models.JobProcessing && job.CreatedAt < cutoff {
			delete(s.jobs, id)
		}
	}
}

func (s *JobStore) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.expire(now.Add(-jobTTL).Unix())
		case <-s.ctx.Done():
			return
		}
	}
}

// PostHarvest returns a handler for POST /api/v1/harvest. It validates the
// request, registers a job and runs it in the background. Images land in
// a per-job directory under the configured output directory.
func PostHarvest(h *harvest.Harvester, jobs *JobStore, sender *webhook.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.HarvestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()
		if req.ProductSelector != "" {
			if _, err := extract.SelectorMatcher(req.ProductSelector); err != nil {
				respondError(c, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err), req.URL, models.TimingInfo{})
				return
			}
		}

		job, err := jobs.start(&req)
		if err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeRateLimited, err.Error(), err), req.URL, models.TimingInfo{})
			return
		}

		go runHarvest(h, jobs, sender, job.ID, req)

		c.JSON(http.StatusAccepted, models.HarvestResponse{
			ID:     job.ID,
			Status: models.JobProcessing,
		})
	}
}

// GetHarvest returns a handler for GET /api/v1/harvest/:id.
func GetHarvest(jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := jobs.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewHarvestError(models.ErrCodeNotFound, "harvest job not found", nil), "", models.TimingInfo{})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// runHarvest executes one job and fires its webhook.
func runHarvest(h *harvest.Harvester, jobs *JobStore, sender *webhook.Sender, id string, req models.HarvestRequest) {
	res, err := h.Run(jobs.ctx, harvest.Options{
		URL:             req.URL,
		Mode:            req.Mode,
		Limit:           req.Limit(),
		Dir:             filepath.Join(h.OutputDir(), id),
		ProductSelector: req.ProductSelector,
		Timeout:         time.Duration(req.Timeout) * time.Second,
	})

	final := jobs.finish(id, func(job *models.HarvestJob) {
		if err != nil {
			job.Status = models.JobFailed
			job.Error = models.AsHarvestError(err).ToDetail()
			return
		}
		job.Downloaded = res.Downloaded()
		job.Failed = res.Failed()
		job.Products = res.Products
		job.Downloads = make([]models.DownloadStatus, len(res.Downloads))
		for i, d := range res.Downloads {
			job.Downloads[i] = models.NewDownloadStatus(d)
		}
		switch {
		case job.Failed > 0 && job.Downloaded == 0:
			job.Status = models.JobFailed
		case job.Failed > 0:
			job.Status = models.JobPartial
		default:
			job.Status = models.JobCompleted
		}
	})

	slog.Info("harvest job finished",
		"id", id,
		"status", final.Status,
		"downloaded", final.Downloaded,
		"failed", final.Failed,
		"products", len(final.Products),
	)

	if req.WebhookURL == "" || sender == nil {
		return
	}
	eventType := webhook.EventHarvestCompleted
	if final.Status == models.JobFailed {
		eventType = webhook.EventHarvestFailed
	}
	sender.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
		Type:      eventType,
		JobID:     id,
		Timestamp: time.Now().Unix(),
		Data:      final,
	})
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
