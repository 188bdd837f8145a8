package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/db"
	"mspro-labs/cfe-tariffs/internal/export"
	"mspro-labs/cfe-tariffs/internal/jobs"
	"mspro-labs/cfe-tariffs/internal/models"
	"mspro-labs/cfe-tariffs/internal/store"
)

var logger = log.WithField("component", "server")

// Server exposes scrape runs and their results over HTTP.
type Server struct {
	db     *sql.DB
	runner *jobs.Runner
	outDir string
}

func NewServer(database *sql.DB, runner *jobs.Runner, outDir string) *Server {
	return &Server{db: database, runner: runner, outDir: outDir}
}

// SetupRouter configures the routes
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	scrape := r.Group("/scrape")
	{
		scrape.POST("/start", s.StartScrape)
		scrape.GET("/status/:id", s.Status)
	}

	download := r.Group("/download")
	{
		download.GET("/english-excel", s.DownloadExcel)
		download.GET("/english-json", s.DownloadJSON)
	}

	r.GET("/failures", s.Failures)
	r.GET("/records", s.Records)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("Request served")
	}
}

// StartScrape handles POST /scrape/start
func (s *Server) StartScrape(c *gin.Context) {
	req := jobs.Request{Headless: true}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	id, err := s.runner.Start(req)
	if errors.Is(err, jobs.ErrRunActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "run_id": id})
		return
	}
	if err != nil {
		logger.Errorf("Failed to start run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "status": models.RunQueued})
}

// Status handles GET /scrape/status/:id
func (s *Server) Status(c *gin.Context) {
	run, err := db.GetRun(s.db, c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		logger.Errorf("Failed to load run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// DownloadExcel handles GET /download/english-excel. The workbook is built
// from the English JSON when it does not exist yet.
func (s *Server) DownloadExcel(c *gin.Context) {
	dir := &store.JSONDir{Root: s.outDir}
	if !dir.Exists(export.WorkbookFile) {
		if !dir.Exists(store.EnglishFile) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No English data available yet."})
			return
		}
		if _, _, err := export.FromOutputDir(s.outDir); err != nil {
			logger.Errorf("Failed to build workbook: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build workbook"})
			return
		}
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.FileAttachment(dir.Path(export.WorkbookFile), export.WorkbookFile)
}

// DownloadJSON handles GET /download/english-json
func (s *Server) DownloadJSON(c *gin.Context) {
	dir := &store.JSONDir{Root: s.outDir}
	if !dir.Exists(store.EnglishFile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No English JSON available yet."})
		return
	}
	c.Header("Content-Type", "application/json")
	c.FileAttachment(dir.Path(store.EnglishFile), store.EnglishFile)
}

// Failures handles GET /failures?limit=
func (s *Server) Failures(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	failures, err := db.ListFailures(s.db, limit)
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list failures"})
		return
	}
	if failures == nil {
		failures = []db.StoredFailure{}
	}
	c.JSON(http.StatusOK, failures)
}

// Records handles GET /records with optional limit, region, municipality, division and fare filters.
func (s *Server) Records(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	records, err := db.ListRecords(s.db, db.RecordFilter{
		Limit:        limit,
		Region:       c.Query("region"),
		Municipality: c.Query("municipality"),
		Division:     c.Query("division"),
		Fare:         c.Query("fare"),
	})
	if err != nil {
		logger.Errorf("Failed to list records: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}
	if records == nil {
		records = []db.StoredRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(db.DefaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}
