package server

import (
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/certs"
	"github.com/anymobile/print-helper/internal/history"
	"github.com/anymobile/print-helper/internal/logging"
	"github.com/anymobile/print-helper/internal/printing"
)

const appName = "anymobile-print-helper"

// maxDocumentSize bounds the multipart document field (64 MiB).
const maxDocumentSize = 64 << 20

type Handler struct {
	version    string
	dispatcher *printing.Dispatcher
	backend    printing.Backend
	certs      *certs.Manager
	store      *history.Store
	logs       *logging.Buffer
	log        *zap.Logger
	httpPort   int
	httpsPort  int
	startedAt  time.Time
}

func NewHandler(
	version string,
	dispatcher *printing.Dispatcher,
	backend printing.Backend,
	certManager *certs.Manager,
	store *history.Store,
	logs *logging.Buffer,
	httpPort, httpsPort int,
	log *zap.Logger,
) *Handler {
	return &Handler{
		version:    version,
		dispatcher: dispatcher,
		backend:    backend,
		certs:      certManager,
		store:      store,
		logs:       logs,
		log:        log,
		httpPort:   httpPort,
		httpsPort:  httpsPort,
		startedAt:  time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", h.Ping)
	r.GET("/printers", h.Printers)
	r.POST("/print", h.Print)
	r.GET("/status", h.Status)
	r.GET("/logs", h.Logs)
	r.POST("/logs/clear", h.LogsClear)
	r.GET("/jobs", h.Jobs)
	r.POST("/cert/install", h.CertInstall)
	r.POST("/cert/remove", h.CertRemove)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":      appName,
		"version":  h.version,
		"printers": h.backend.ListPrinters(c.Request.Context()),
	})
}

func (h *Handler) Printers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"printers": h.backend.ListPrinters(c.Request.Context()),
	})
}

func (h *Handler) Print(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "failed to parse form data: " + err.Error(),
		})
		return
	}

	files := form.File["pdf"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "no PDF data provided",
		})
		return
	}

	file, err := files[0].Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "failed to read PDF data: " + err.Error(),
		})
		return
	}
	// One byte past the limit distinguishes "exactly at the cap" from
	// "too large": dispatching a truncated prefix would print garbage.
	document, err := io.ReadAll(io.LimitReader(file, maxDocumentSize+1))
	file.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "failed to read PDF data: " + err.Error(),
		})
		return
	}
	if len(document) > maxDocumentSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "document too large",
		})
		return
	}

	printer := c.PostForm("printer")
	copies := 1
	if v := c.PostForm("copies"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			copies = n
		}
	}

	jobID, err := h.dispatcher.Dispatch(c.Request.Context(), document, printer, copies)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobId":   jobID,
	})
}

func (h *Handler) Status(c *gin.Context) {
	httpsRunning := portListening(h.httpsPort)
	httpRunning := portListening(h.httpPort)
	certExists := h.certs.Exists()
	certValid := h.certs.Valid()
	certTrusted := h.certs.IsTrusted()

	overall := "error"
	switch {
	case httpsRunning && httpRunning && certValid:
		if runtime.GOOS == "windows" && !certTrusted {
			overall = "warning"
		} else {
			overall = "ready"
		}
	case httpRunning || httpsRunning:
		overall = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"httpsRunning":  httpsRunning,
		"httpRunning":   httpRunning,
		"certExists":    certExists,
		"certValid":     certValid,
		"certTrusted":   certTrusted,
		"certPath":      h.certs.Dir(),
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"platform":      runtime.GOOS,
		"overallStatus": overall,
	})
}

func (h *Handler) Logs(c *gin.Context) {
	count := 100
	if v := c.Query("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": h.logs.Recent(count, c.Query("level")),
	})
}

func (h *Handler) LogsClear(c *gin.Context) {
	h.logs.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Jobs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	records, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": records, "count": len(records)})
}

type certInstallRequest struct {
	Elevated bool `json:"elevated"`
}

func (h *Handler) CertInstall(c *gin.Context) {
	var req certInstallRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.certs.Install(req.Elevated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) CertRemove(c *gin.Context) {
	if err := h.certs.Remove(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// portListening reports whether something already holds the loopback port,
// which for our fixed ports means the corresponding listener is up.
func portListening(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return true
	}
	l.Close()
	return false
}
