package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/certs"
	"github.com/anymobile/print-helper/internal/history"
	"github.com/anymobile/print-helper/internal/logging"
	"github.com/anymobile/print-helper/internal/printing"
)

type fakeBackend struct {
	printers []printing.Printer
	err      error

	lastJob printing.Job
}

func (f *fakeBackend) ListPrinters(ctx context.Context) []printing.Printer {
	return f.printers
}

func (f *fakeBackend) Print(ctx context.Context, job printing.Job, scratchPath string) (string, error) {
	f.lastJob = job
	return "fake", f.err
}

func newTestRouter(t *testing.T, backend *fakeBackend) (*gin.Engine, *history.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logBuf := logging.NewBuffer(50)
	logBuf.Append("INFO", "test", "service started")

	certManager := certs.NewManager(t.TempDir(), time.Minute, zap.NewNop())
	dispatcher := printing.NewDispatcher(backend, store, 0, zap.NewNop())

	handler := NewHandler("1.2.3-test", dispatcher, backend, certManager, store, logBuf, 9847, 9848, zap.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body *bytes.Buffer, contentType string) (int, map[string]any) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, w.Body.String())
	}
	return w.Code, payload
}

func multipartBody(t *testing.T, fields map[string]string, pdf []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if pdf != nil {
		part, err := writer.CreateFormFile("pdf", "document.pdf")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(pdf)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestPing(t *testing.T) {
	backend := &fakeBackend{printers: []printing.Printer{
		{Name: "Office_Laser", IsDefault: true, Status: printing.StatusReady},
	}}
	router, _ := newTestRouter(t, backend)

	code, payload := doJSON(t, router, http.MethodGet, "/ping", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if payload["app"] != "anymobile-print-helper" {
		t.Errorf("app = %v", payload["app"])
	}
	if payload["version"] != "1.2.3-test" {
		t.Errorf("version = %v", payload["version"])
	}
	printers, ok := payload["printers"].([]any)
	if !ok || len(printers) != 1 {
		t.Fatalf("printers = %v", payload["printers"])
	}
}

func TestPrinters(t *testing.T) {
	backend := &fakeBackend{printers: []printing.Printer{
		{Name: "A", Status: printing.StatusReady},
		{Name: "B", IsDefault: true, Status: printing.StatusBusy},
	}}
	router, _ := newTestRouter(t, backend)

	code, payload := doJSON(t, router, http.MethodGet, "/printers", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	printers := payload["printers"].([]any)
	if len(printers) != 2 {
		t.Fatalf("got %d printers, want 2", len(printers))
	}
	second := printers[1].(map[string]any)
	if second["name"] != "B" || second["isDefault"] != true || second["status"] != "busy" {
		t.Errorf("printer payload = %v", second)
	}
}

func TestPrintSuccess(t *testing.T) {
	backend := &fakeBackend{}
	router, store := newTestRouter(t, backend)

	body, contentType := multipartBody(t, map[string]string{
		"printer": "Office_Laser",
		"copies":  "2",
	}, []byte("%PDF-1.4 content"))

	code, payload := doJSON(t, router, http.MethodPost, "/print", body, contentType)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", code, payload)
	}
	if payload["success"] != true {
		t.Errorf("success = %v", payload["success"])
	}
	jobID, _ := payload["jobId"].(string)
	if jobID == "" {
		t.Fatal("response missing jobId")
	}

	if backend.lastJob.Printer != "Office_Laser" || backend.lastJob.Copies != 2 {
		t.Errorf("job = %+v", backend.lastJob)
	}

	r, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job not in history: %v", err)
	}
	if r.Status != history.StatusCompleted {
		t.Errorf("history status = %q", r.Status)
	}
}

func TestPrintMissingDocument(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	body, contentType := multipartBody(t, map[string]string{"printer": "X"}, nil)

	code, payload := doJSON(t, router, http.MethodPost, "/print", body, contentType)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
	if payload["error"] != "no PDF data provided" {
		t.Errorf("error = %v", payload["error"])
	}
}

func TestPrintOversizedDocument(t *testing.T) {
	backend := &fakeBackend{}
	router, store := newTestRouter(t, backend)

	body, contentType := multipartBody(t, nil, bytes.Repeat([]byte("a"), maxDocumentSize+1))

	code, payload := doJSON(t, router, http.MethodPost, "/print", body, contentType)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
	if payload["error"] != "document too large" {
		t.Errorf("error = %v", payload["error"])
	}
	if backend.lastJob.ID != "" {
		t.Error("oversized document must never reach the backend")
	}

	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d history records, want 0", len(records))
	}
}

func TestPrintDocumentAtSizeLimit(t *testing.T) {
	backend := &fakeBackend{}
	router, _ := newTestRouter(t, backend)

	body, contentType := multipartBody(t, nil, bytes.Repeat([]byte("a"), maxDocumentSize))

	code, payload := doJSON(t, router, http.MethodPost, "/print", body, contentType)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", code, payload)
	}
}

func TestPrintMalformedForm(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	body := bytes.NewBufferString("this is not multipart")
	code, payload := doJSON(t, router, http.MethodPost, "/print", body, "multipart/form-data; boundary=missing")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	msg, _ := payload["error"].(string)
	if !strings.HasPrefix(msg, "failed to parse form data") {
		t.Errorf("error = %q", msg)
	}
}

func TestPrintInvalidCopiesDefaultsToOne(t *testing.T) {
	backend := &fakeBackend{}
	router, _ := newTestRouter(t, backend)

	for _, copies := range []string{"", "0", "-3", "banana"} {
		body, contentType := multipartBody(t, map[string]string{"copies": copies}, []byte("doc"))
		code, _ := doJSON(t, router, http.MethodPost, "/print", body, contentType)
		if code != http.StatusOK {
			t.Fatalf("copies=%q: status = %d, want 200", copies, code)
		}
		if backend.lastJob.Copies != 1 {
			t.Errorf("copies=%q: dispatched %d copies, want 1", copies, backend.lastJob.Copies)
		}
	}
}

func TestPrintBackendFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("spooler unavailable")}
	router, _ := newTestRouter(t, backend)

	body, contentType := multipartBody(t, nil, []byte("doc"))
	code, payload := doJSON(t, router, http.MethodPost, "/print", body, contentType)
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
	msg, _ := payload["error"].(string)
	if !strings.Contains(msg, "spooler unavailable") {
		t.Errorf("error should carry the backend failure, got %q", msg)
	}
}

func TestStatusShape(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	code, payload := doJSON(t, router, http.MethodGet, "/status", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	for _, key := range []string{
		"httpsRunning", "httpRunning", "certExists", "certValid",
		"certTrusted", "certPath", "version", "uptimeSeconds",
		"platform", "overallStatus",
	} {
		if _, ok := payload[key]; !ok {
			t.Errorf("status payload missing %q", key)
		}
	}

	// No certificate generated and no listeners bound in this test.
	if payload["certExists"] != false {
		t.Errorf("certExists = %v, want false", payload["certExists"])
	}
	if payload["overallStatus"] != "error" {
		t.Errorf("overallStatus = %v, want error with nothing listening", payload["overallStatus"])
	}
}

func TestLogs(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	code, payload := doJSON(t, router, http.MethodGet, "/logs?count=10", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	logs, ok := payload["logs"].([]any)
	if !ok || len(logs) != 1 {
		t.Fatalf("logs = %v", payload["logs"])
	}
	entry := logs[0].(map[string]any)
	if entry["message"] != "service started" || entry["source"] != "test" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLogsClear(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	if code, _ := doJSON(t, router, http.MethodPost, "/logs/clear", nil, ""); code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", code)
	}

	_, payload := doJSON(t, router, http.MethodGet, "/logs", nil, "")
	if logs := payload["logs"].([]any); len(logs) != 0 {
		t.Errorf("got %d entries after clear, want 0", len(logs))
	}
}

func TestJobs(t *testing.T) {
	backend := &fakeBackend{}
	router, _ := newTestRouter(t, backend)

	body, contentType := multipartBody(t, nil, []byte("doc"))
	if code, _ := doJSON(t, router, http.MethodPost, "/print", body, contentType); code != http.StatusOK {
		t.Fatal("print setup failed")
	}

	code, payload := doJSON(t, router, http.MethodGet, "/jobs", nil, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if payload["count"] != float64(1) {
		t.Errorf("count = %v, want 1", payload["count"])
	}
	jobs := payload["jobs"].([]any)
	job := jobs[0].(map[string]any)
	if job["status"] != history.StatusCompleted {
		t.Errorf("job status = %v", job["status"])
	}
	if _, ok := job["jobId"].(string); !ok {
		t.Errorf("job payload missing jobId: %v", job)
	}
}
