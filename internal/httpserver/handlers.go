package httpserver

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"

	"github.com/tinytelemetry/logstat/internal/logparse"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/memstats"
	"github.com/tinytelemetry/logstat/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	runCount, err := s.store.TotalRunCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}
	entryCount, err := s.store.TotalEntryCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}
	mem, _ := memstats.Read()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"run_count":   runCount,
		"entry_count": entryCount,
		"memory":      mem,
	})
}

// queryLimit parses the limit query parameter.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, maxListLimit), true
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	processFilter, err := compileFilter(c.Query("process"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid process filter: %v", err)})
		return
	}
	hostnameFilter, err := compileFilter(c.Query("hostname"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid hostname filter: %v", err)})
		return
	}

	stats, err := s.store.GetRunStats(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run"})
		return
	}

	stats.ByProcess = filterCounts(stats.ByProcess, processFilter)
	stats.ByHostname = filterCounts(stats.ByHostname, hostnameFilter)
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetRunMeta(c *gin.Context) {
	run, err := s.store.GetRun(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// compileFilter compiles a glob filter; an empty pattern matches everything.
func compileFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	return glob.Compile(pattern)
}

func filterCounts(counts map[string]uint32, g glob.Glob) map[string]uint32 {
	if g == nil {
		return counts
	}
	out := make(map[string]uint32)
	for k, n := range counts {
		if g.Match(k) {
			out[k] = n
		}
	}
	return out
}

func (s *Server) handleAnalyze(c *gin.Context) {
	if s.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis is disabled"})
		return
	}
	persist := false
	if raw := c.Query("persist"); raw != "" {
		var err error
		if persist, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "persist must be a boolean"})
			return
		}
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodySize)
	src := logsource.NewStreamSource("http:"+c.ClientIP(), body)

	out, err := s.analyzer.Run(c.Request.Context(), src, persist)
	if err != nil {
		var perr *logparse.ParseError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &perr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  perr.Error(),
				"kind":   perr.Kind.Error(),
				"field":  perr.Field,
				"record": perr.Record,
				"offset": perr.Offset,
			})
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Header("X-Run-Id", out.Run.ID)
	c.Header("X-Input-Digest", out.Run.Digest)
	c.JSON(http.StatusOK, out.Result.Stats)
}

func (s *Server) handleTopProcesses(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	top, err := s.store.TopProcesses(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read processes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processes": top})
}

func (s *Server) handleTopHostnames(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	top, err := s.store.TopHostnames(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read hostnames"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hostnames": top})
}

func (s *Server) handleSchema(c *gin.Context) {
	tables, err := s.store.TableColumns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}
	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      tables,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := []string{}
	if len(results) > 0 {
		columns = slices.Sorted(maps.Keys(results[0]))
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
