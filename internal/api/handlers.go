package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
)

func (s *Server) getEngines(c *gin.Context) {
	engines := s.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"engines": engines,
		"total":   len(engines),
	})
}

func (s *Server) getEngineStatus(c *gin.Context) {
	stats := s.recorder.EngineStats()

	type engineStatus struct {
		Status string `json:"status"`
		model.EngineStats
	}
	out := make(map[string]engineStatus)
	for name, status := range s.registry.Status() {
		out[name] = engineStatus{
			Status:      status,
			EngineStats: stats[name],
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"engines": out,
	})
}

func (s *Server) scanFile(c *gin.Context) {
	file, err := formFile(c, "file")
	if err != nil {
		writeError(c, err)
		return
	}
	opts, err := s.scanOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.orch.ScanFile(c.Request.Context(), file, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (s *Server) scanBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, fmt.Errorf("reading multipart form: %v: %w", err, model.ErrInvalidOptions))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		writeError(c, fmt.Errorf("no files submitted: %w", model.ErrInvalidOptions))
		return
	}

	files := make([]orchestrator.File, 0, len(headers))
	for _, h := range headers {
		f, err := readMultipartFile(h)
		if err != nil {
			writeError(c, err)
			return
		}
		files = append(files, f)
	}

	opts, err := s.scanOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	concurrency := formInt(c, "thread_pool_size", 0)

	batchID, err := s.orch.ScanBatch(c.Request.Context(), files, opts, concurrency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"batch_id":    batchID,
		"total_files": len(files),
		"status":      model.BatchQueued,
	})
}

func (s *Server) getScanStatus(c *gin.Context) {
	id := c.Param("id")

	if job, err := s.orch.JobStatus(id); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"batch":   job,
		})
		return
	}

	result, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scan": gin.H{
			"status": "complete",
			"result": result,
		},
	})
}

func (s *Server) pauseBatch(c *gin.Context)  { s.batchOp(c, s.orch.Pause) }
func (s *Server) resumeBatch(c *gin.Context) { s.batchOp(c, s.orch.Resume) }
func (s *Server) cancelBatch(c *gin.Context) { s.batchOp(c, s.orch.Cancel) }

func (s *Server) batchOp(c *gin.Context, op func(string) error) {
	id := c.Param("id")
	if err := op(id); err != nil {
		writeError(c, err)
		return
	}
	job, err := s.orch.JobStatus(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"batch":   job,
	})
}

func (s *Server) getHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	scans, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := s.store.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scans":   scans,
		"total":   total,
	})
}

func (s *Server) getSystemMetrics(c *gin.Context) {
	m := s.recorder.System(c.Request.Context())
	if total, err := s.store.Count(c.Request.Context()); err == nil {
		m.TotalScans = total
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"metrics": m,
	})
}

// scanOptions builds ScanOptions from form or query fields, falling back to
// the configured defaults.
func (s *Server) scanOptions(c *gin.Context) (model.ScanOptions, error) {
	opts := s.defaults.Options()

	if v := formValue(c, "engines"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Engines = append(opts.Engines, name)
			}
		}
	}
	opts.DeepAnalysis = formBool(c, "deep_analysis", opts.DeepAnalysis)
	opts.GenerateHashes = formBool(c, "generate_hashes", opts.GenerateHashes)
	opts.ExtractMetadata = formBool(c, "extract_metadata", opts.ExtractMetadata)
	opts.ValidateSignatures = formBool(c, "validate_signatures", opts.ValidateSignatures)
	opts.SkipDuplicates = formBool(c, "skip_duplicates", opts.SkipDuplicates)
	if v := formValue(c, "timeout_ms"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("timeout_ms: %v: %w", err, model.ErrInvalidOptions)
		}
		opts.TimeoutMs = n
	}
	if v := formValue(c, "max_file_size_bytes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("max_file_size_bytes: %v: %w", err, model.ErrInvalidOptions)
		}
		opts.MaxFileSizeBytes = n
	}

	return opts, opts.Validate()
}

func formFile(c *gin.Context, field string) (orchestrator.File, error) {
	h, err := c.FormFile(field)
	if err != nil {
		return orchestrator.File{}, fmt.Errorf("missing %q upload: %w", field, model.ErrInvalidOptions)
	}
	return readMultipartFile(h)
}

func readMultipartFile(h *multipart.FileHeader) (orchestrator.File, error) {
	f, err := h.Open()
	if err != nil {
		return orchestrator.File{}, fmt.Errorf("opening upload %s: %w", h.Filename, err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return orchestrator.File{}, fmt.Errorf("reading upload %s: %w", h.Filename, err)
	}
	return orchestrator.File{Name: h.Filename, Data: data}, nil
}

func formValue(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func formBool(c *gin.Context, key string, def bool) bool {
	v := formValue(c, key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func formInt(c *gin.Context, key string, def int) int {
	v := formValue(c, key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
