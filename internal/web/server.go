package web

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"imagepress/internal/compression"
	"imagepress/internal/config"
	"imagepress/internal/encoder"
	"imagepress/internal/logger"
	"imagepress/internal/processor"
	"imagepress/internal/similarity"
	"imagepress/internal/statistics"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	reg        *encoder.Registry
	cmp        similarity.Comparator
	meta       *processor.MetadataCopier
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelBatch    context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	Directory    string  `json:"directory"`
	OutputDir    string  `json:"output_dir,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	Format       string  `json:"format,omitempty"`
	Quality      int     `json:"quality,omitempty"`
	MinQuality   int     `json:"min_quality,omitempty"`
	TargetSizeMB float64 `json:"target_size_mb,omitempty"`
	Overwrite    bool    `json:"overwrite"`
	SkipExisting bool    `json:"skip_existing"`
}

type CompareRequest struct {
	Path    string `json:"path"`
	Quality int    `json:"quality,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, reg *encoder.Registry, cmp similarity.Comparator, meta *processor.MetadataCopier) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		cmp:       cmp,
		meta:      meta,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/formats", s.handleFormats).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/compare", s.handleCompare).Methods("POST")
	api.HandleFunc("/inspect", s.handleInspect).Methods("GET")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = statsSnapshot(stats)
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	type formatInfo struct {
		Name            string `json:"name"`
		Extension       string `json:"extension"`
		SupportsQuality bool   `json:"supports_quality"`
		SupportsAlpha   bool   `json:"supports_alpha"`
	}

	var formats []formatInfo
	for _, name := range s.reg.AvailableFormats() {
		enc, err := s.reg.Get(name)
		if err != nil {
			continue
		}
		formats = append(formats, formatInfo{
			Name:            enc.FormatName(),
			Extension:       enc.Extension(),
			SupportsQuality: enc.SupportsQuality(),
			SupportsAlpha:   enc.SupportsAlpha(),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    formats,
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}

	// Check if already running
	s.operationMutex.RLock()
	if s.isRunning {
		s.operationMutex.RUnlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	s.operationMutex.RUnlock()

	if _, err := os.Stat(req.Directory); os.IsNotExist(err) {
		s.writeError(w, "Directory does not exist", http.StatusBadRequest)
		return
	}

	go s.runCompressAsync(req)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}
	if req.Quality == 0 {
		req.Quality = s.cfg.Compression.Quality
	}

	img, err := openImage(req.Path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to load image: %v", err), http.StatusBadRequest)
		return
	}

	advisor := compression.NewAdvisor(s.reg, s.cfg.Compression.MinQuality)
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    advisor.Comparison(img, req.Quality),
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	info, err := processor.Inspect(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to inspect image: %v", err), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    info,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if s.cancelBatch != nil {
		s.cancelBatch()
	}
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    statsSnapshot(stats),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runCompressAsync(req CompressRequest) {
	ctx, cancel := context.WithCancel(context.Background())

	s.operationMutex.Lock()
	s.isRunning = true
	s.cancelBatch = cancel
	s.currentStats = statistics.NewStatistics()
	stats := s.currentStats
	s.operationMutex.Unlock()

	defer func() {
		cancel()
		s.operationMutex.Lock()
		s.isRunning = false
		s.cancelBatch = nil
		s.operationMutex.Unlock()
	}()

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"directory": req.Directory,
	})

	proc := processor.NewProcessor(s.reg, s.cmp, s.meta, s.log, stats)

	files, err := s.collectImageFiles(req.Directory)
	if err != nil {
		s.broadcastWSMessage("compress_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	task := s.taskTemplate(req)
	for _, path := range files {
		t := task
		t.Path = path
		if err := proc.Add(t); err != nil {
			logger.WithFileOperation(s.log, path, "queue").WithError(err).Warn("Skipping invalid task")
		}
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.cfg.OutputDirectory
	}

	progress := func(current, total int, message string) {
		s.broadcastWSMessage("compress_progress", map[string]interface{}{
			"current": current,
			"total":   total,
			"message": message,
		})
	}

	report, err := proc.ProcessBatch(ctx, outputDir, progress, req.Overwrite, req.SkipExisting)
	stats.Finalize()

	if err != nil && err != context.Canceled {
		s.broadcastWSMessage("compress_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	logger.WithOperation(s.log, "compress").Infof("Batch finished: %d succeeded, %d failed, %d skipped",
		len(report.Succeeded), len(report.Failed), report.Skipped)

	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"succeeded":  len(report.Succeeded),
		"failed":     len(report.Failed),
		"skipped":    report.Skipped,
		"statistics": stats.GetSummary(),
	})
}

// taskTemplate maps a request onto a task, filling gaps from config.
func (s *Server) taskTemplate(req CompressRequest) processor.Task {
	task := processor.Task{
		Mode:                req.Mode,
		Format:              req.Format,
		Quality:             req.Quality,
		MinQuality:          req.MinQuality,
		TargetSizeMB:        req.TargetSizeMB,
		Chroma:              s.cfg.Compression.Chroma,
		Progressive:         s.cfg.Compression.Progressive,
		Optimize:            s.cfg.Compression.Optimize,
		CalculateSimilarity: s.cfg.Compression.CalculateSimilarity,
		PreserveMetadata:    s.cfg.Metadata.Preserve,
	}
	if task.Mode == "" {
		task.Mode = s.cfg.Compression.Mode
	}
	if task.Format == "" {
		task.Format = s.cfg.Compression.Format
	}
	if task.Quality == 0 {
		task.Quality = s.cfg.Compression.Quality
	}
	if task.MinQuality == 0 {
		task.MinQuality = s.cfg.Compression.MinQuality
	}
	if task.TargetSizeMB == 0 {
		task.TargetSizeMB = s.cfg.Compression.TargetSizeMB
	}
	return task
}

func (s *Server) collectImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if s.cfg.IsImageExtension(strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	return files, nil
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func openImage(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func statsSnapshot(stats *statistics.Statistics) map[string]interface{} {
	return map[string]interface{}{
		"summary": stats.GetSummary(),
		"tasks": map[string]interface{}{
			"processed": stats.GetTasksProcessed(),
			"failed":    stats.GetTasksFailed(),
		},
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
