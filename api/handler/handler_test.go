package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const catalogPage = `<html><head><title>Catalog</title></head><body>
<article class="Product-Card"><h3 class="name">Lamp</h3><span class="price">€20</span><img data-src="lamp.png"></article>
<img src="a.png"><img src="b.png"><img src="c.png">
</body></html>`

type fixture struct {
	site     *httptest.Server
	pageHits atomic.Int32
	router   *gin.Engine
	jobs     *JobStore
	outDir   string
}

func newFixture(t *testing.T, maxJobs int) *fixture {
	t.Helper()
	f := &fixture{outDir: t.TempDir()}
	f.site = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			f.pageHits.Add(1)
			fmt.Fprint(w, catalogPage)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/b.png":
			http.NotFound(w, r)
		default:
			fmt.Fprint(w, "bytes of "+r.URL.Path)
		}
	}))
	t.Cleanup(f.site.Close)

	cfg := config.Load()
	cfg.Fetch.ChromeTLS = false
	cfg.Fetch.Timeout = 5 * time.Second
	cfg.Download.OutputDir = f.outDir
	h, err := harvest.New(engine.NewHTTPEngine(cfg.Fetch), cfg)
	if err != nil {
		t.Fatalf("harvest.New: %v", err)
	}

	cc := cache.New(10)
	t.Cleanup(cc.Close)
	f.jobs = NewJobStore(maxJobs)
	t.Cleanup(func() { _ = f.jobs.Shutdown(context.Background()) })

	r := gin.New()
	r.GET("/health", Health(f.jobs, time.Now()))
	r.POST("/images", Images(h, cc))
	r.POST("/products", Products(h, cc))
	r.POST("/harvest", PostHarvest(h, f.jobs, webhook.NewSender()))
	r.GET("/harvest/:id", GetHarvest(f.jobs))
	f.router = r
	return f
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestImages(t *testing.T) {
	f := newFixture(t, 4)
	w := f.post(t, "/images", map[string]any{"url": f.site.URL + "/", "max_images": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[models.ExtractResponse](t, w)
	want := []models.ImageReference{
		{SourceURL: f.site.URL + "/lamp.png", SuggestedFilename: "lamp.png"},
		{SourceURL: f.site.URL + "/a.png", SuggestedFilename: "a.png"},
	}
	if diff := cmp.Diff(want, resp.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if resp.Title != "Catalog" || !resp.Success {
		t.Errorf("resp = %+v", resp)
	}
	entries, _ := os.ReadDir(f.outDir)
	if len(entries) != 0 {
		t.Errorf("images endpoint wrote %d files", len(entries))
	}
}

func TestProducts(t *testing.T) {
	f := newFixture(t, 4)
	w := f.post(t, "/products", map[string]any{"url": f.site.URL + "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[models.ExtractResponse](t, w)
	want := []models.Product{{Title: "Lamp", Price: "€20", Image: f.site.URL + "/lamp.png"}}
	if diff := cmp.Diff(want, resp.Products); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}
}

func TestProducts_BadSelector(t *testing.T) {
	f := newFixture(t, 4)
	w := f.post(t, "/products", map[string]any{"url": f.site.URL + "/", "product_selector": "a[["})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestExtract_Cache(t *testing.T) {
	f := newFixture(t, 4)
	body := map[string]any{"url": f.site.URL + "/", "max_age": 60000}

	first := decode[models.ExtractResponse](t, f.post(t, "/images", body))
	second := decode[models.ExtractResponse](t, f.post(t, "/images", body))
	if first.CacheStatus != "miss" || second.CacheStatus != "hit" {
		t.Errorf("cache status = %q then %q, want miss then hit", first.CacheStatus, second.CacheStatus)
	}
	if f.pageHits.Load() != 1 {
		t.Errorf("page fetched %d times, want 1", f.pageHits.Load())
	}

	// Products are cached under a different key.
	f.post(t, "/products", body)
	if f.pageHits.Load() != 2 {
		t.Errorf("page fetched %d times, want 2", f.pageHits.Load())
	}
}

func TestExtract_Validation(t *testing.T) {
	f := newFixture(t, 4)
	for _, body := range []map[string]any{
		{},
		{"url": "not a url"},
		{"url": f.site.URL, "timeout": 500},
		{"url": f.site.URL, "max_images": -1},
	} {
		w := f.post(t, "/images", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d, want 400", body, w.Code)
			continue
		}
		if resp := decode[models.ExtractResponse](t, w); resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
			t.Errorf("%v: error = %+v", body, resp.Error)
		}
	}
}

func TestExtract_UnreachablePage(t *testing.T) {
	f := newFixture(t, 4)
	w := f.post(t, "/images", map[string]any{"url": f.site.URL + "/down"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	resp := decode[models.ExtractResponse](t, w)
	if resp.Success || resp.Error.Code != models.ErrCodeFetch {
		t.Errorf("resp = %+v", resp)
	}
}

func waitJob(t *testing.T, f *fixture, id string) models.HarvestStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := decode[models.HarvestStatusResponse](t, f.get("/harvest/"+id))
		if status.Status != models.JobProcessing {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return models.HarvestStatusResponse{}
}

func TestHarvestJob(t *testing.T) {
	f := newFixture(t, 4)

	hooks := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sig := r.Header.Get(webhook.SignatureHeader)
		if !webhook.Verify("k", body, sig) {
			t.Errorf("bad signature %q", sig)
		}
		var ev webhook.Event
		_ = json.Unmarshal(body, &ev)
		hooks <- ev
	}))
	defer hook.Close()

	w := f.post(t, "/harvest", map[string]any{
		"url":            f.site.URL + "/",
		"mode":           "both",
		"webhook_url":    hook.URL,
		"webhook_secret": "k",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	accepted := decode[models.HarvestResponse](t, w)

	status := waitJob(t, f, accepted.ID)
	if status.Status != models.JobPartial {
		t.Errorf("status = %q, want partial", status.Status)
	}
	if status.Downloaded != 3 || status.Failed != 1 {
		t.Errorf("downloaded=%d failed=%d, want 3 and 1", status.Downloaded, status.Failed)
	}
	if len(status.Products) != 1 {
		t.Errorf("products = %v", status.Products)
	}
	if got := status.Downloads[2]; got.Error == nil || got.Error.Code != models.ErrCodeFetch {
		t.Errorf("b.png should fail, got %+v", got)
	}
	jobDir := filepath.Join(f.outDir, accepted.ID)
	if b, err := os.ReadFile(filepath.Join(jobDir, "c.png")); err != nil || string(b) != "bytes of /c.png" {
		t.Errorf("c.png = %q, %v", b, err)
	}

	select {
	case ev := <-hooks:
		if ev.Type != webhook.EventHarvestCompleted || ev.JobID != accepted.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestHarvestJob_PageDown(t *testing.T) {
	f := newFixture(t, 4)
	accepted := decode[models.HarvestResponse](t, f.post(t, "/harvest", map[string]any{"url": f.site.URL + "/down"}))
	status := waitJob(t, f, accepted.ID)
	if status.Status != models.JobFailed || status.Error == nil || status.Error.Code != models.ErrCodeFetch {
		t.Errorf("status = %+v", status)
	}
	if status.Mode != models.ModeImages {
		t.Errorf("mode = %q, want default images", status.Mode)
	}
}

func TestHarvestJob_NotFound(t *testing.T) {
	f := newFixture(t, 4)
	w := f.get("/harvest/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHarvestJob_InvalidMode(t *testing.T) {
	f := newFixture(t, 4)
	if w := f.post(t, "/harvest", map[string]any{"url": f.site.URL, "mode": "video"}); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHarvestJob_BadSelector(t *testing.T) {
	f := newFixture(t, 4)
	w := f.post(t, "/harvest", map[string]any{"url": f.site.URL + "/", "mode": "products", "product_selector": "a[["})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decode[models.ExtractResponse](t, w)
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v, want INVALID_INPUT", resp.Error)
	}
	if f.jobs.Active() != 0 || f.pageHits.Load() != 0 {
		t.Errorf("rejected request started a job: active=%d hits=%d", f.jobs.Active(), f.pageHits.Load())
	}
}

func TestJobStore_Limit(t *testing.T) {
	s := NewJobStore(1)
	defer s.Shutdown(context.Background())

	req := &models.HarvestRequest{ExtractRequest: models.ExtractRequest{URL: "https://x.test"}}
	job, err := s.start(req)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := s.start(req); err == nil {
		t.Fatal("second start should be rejected")
	}
	if s.Active() != 1 {
		t.Errorf("Active = %d, want 1", s.Active())
	}

	final := s.finish(job.ID, func(j *models.HarvestJob) { j.Status = models.JobCompleted })
	if final.Status != models.JobCompleted || s.Active() != 0 {
		t.Errorf("after finish: %+v, active %d", final, s.Active())
	}
	again, err := s.start(req)
	if err != nil {
		t.Fatalf("start after finish: %v", err)
	}
	s.finish(again.ID, func(j *models.HarvestJob) { j.Status = models.JobCompleted })
}

func TestJobStore_Expire(t *testing.T) {
	s := NewJobStore(0)
	defer s.Shutdown(context.Background())

	req := &models.HarvestRequest{ExtractRequest: models.ExtractRequest{URL: "https://x.test"}}
	done, _ := s.start(req)
	s.finish(done.ID, func(j *models.HarvestJob) { j.Status = models.JobCompleted })
	running, _ := s.start(req)

	s.expire(time.Now().Add(time.Hour).Unix())
	if _, ok := s.Get(done.ID); ok {
		t.Error("finished job should expire")
	}
	if _, ok := s.Get(running.ID); !ok {
		t.Error("running job must not expire")
	}
	s.finish(running.ID, func(j *models.HarvestJob) { j.Status = models.JobCompleted })
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 4)
	resp := decode[models.HealthResponse](t, f.get("/health"))
	if resp.Status != "healthy" || resp.ActiveJobs != 0 || resp.Version != Version {
		t.Errorf("health = %+v", resp)
	}
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeFetch, http.StatusBadGateway},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeUnauthorized, http.StatusUnauthorized},
		{models.ErrCodeNotFound, http.StatusNotFound},
		{models.ErrCodePersist, http.StatusInternalServerError},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToStatus(models.NewHarvestError(tt.code, "x", nil)); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.code, got, tt.want)
		}
	}
}
