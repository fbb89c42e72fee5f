package web

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/JonMunkholm/topsis/internal/core"
	"github.com/JonMunkholm/topsis/internal/logging"
	"github.com/JonMunkholm/topsis/internal/web/templates"
)

// Form field names.
const (
	fieldFile    = "file"
	fieldWeights = "weights"
	fieldImpacts = "impacts"
	fieldEmail   = "email"
)

// maxFormMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const maxFormMemory = 8 << 20

// HeaderDeliveryStatus carries "sent" or the delivery failure kind on 200.
const HeaderDeliveryStatus = "X-Delivery-Status"

// handleForm renders the upload page.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := templates.FormData{
		MaxUploadMB:    s.cfg.Upload.MaxFileSize >> 20,
		MailConfigured: s.mailConfigured,
	}
	if err := templates.Form(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render form", "error", err)
	}
}

// handleCalculate runs one submitted form through the pipeline.
//
// The file is checked before the text fields. Input errors answer 400 with
// the message as the body. A calculation whose email failed still answers
// 200; the body and X-Delivery-Status say why.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	req, closeFile, err := parseCalculationForm(r)
	defer closeFile()
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.Calculate(ctx, req)
	if err != nil {
		if errors.Is(err, core.ErrTooManyCalculations) {
			w.Header().Set("Retry-After", "5")
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	status := deliveryStatus(out)
	w.Header().Set(HeaderDeliveryStatus, status)
	w.Header().Set("X-Run-ID", out.ID.String())

	if !wantsJSON(r) {
		writeText(w, http.StatusOK, out.Message)
		return
	}
	resp := Response{Message: out.Message, Kind: status, ID: out.ID.String()}
	if !out.Delivered {
		resp.Code = core.DeliveryMessage(out.DeliveryKind).Code
	}
	writeJSON(w, http.StatusOK, resp)
}

func deliveryStatus(out *core.CalculationOutcome) string {
	if out.Delivered {
		return "sent"
	}
	return string(out.DeliveryKind)
}

// parseCalculationForm reads the multipart form. The returned func closes
// the upload and removes spilled temp files; it is never nil.
//
// A request without a usable file part yields a CalculationRequest with a nil
// File, which the service rejects as "No file uploaded".
func parseCalculationForm(r *http.Request) (core.CalculationRequest, func(), error) {
	var req core.CalculationRequest
	closeFn := func() {}

	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil {
		if isTooLarge(err) {
			return req, closeFn, err
		}
		// not multipart or malformed: fall through with no file
		logging.FromContext(r.Context()).Debug("multipart form unavailable", "error", err)
	}

	var file multipart.File
	if r.MultipartForm != nil {
		form := r.MultipartForm
		closeFn = func() {
			if file != nil {
				_ = file.Close()
			}
			_ = form.RemoveAll()
		}
		if headers := form.File[fieldFile]; len(headers) > 0 && headers[0].Filename != "" {
			file, err = headers[0].Open()
			if err != nil {
				return req, closeFn, &core.InputError{Kind: core.InputUnreadable, Message: core.MsgUnreadable, Err: err}
			}
			req.File = file
			req.FileName = headers[0].Filename
		}
	}
	if req.File == nil {
		return req, closeFn, nil
	}

	for _, name := range []string{fieldWeights, fieldImpacts, fieldEmail} {
		if _, ok := r.PostForm[name]; !ok {
			return req, closeFn, core.MissingField(name)
		}
	}
	req.Weights = r.PostForm.Get(fieldWeights)
	req.Impacts = r.PostForm.Get(fieldImpacts)
	req.Email = r.PostForm.Get(fieldEmail)
	return req, closeFn, nil
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string             `json:"status"`
	Calculations core.LimiterStatus `json:"calculations"`
	Database     string             `json:"database,omitempty"`
	Mail         string             `json:"mail"`
}

// handleHealth reports liveness plus the state of optional dependencies. It
// answers 503 only when a configured database is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Calculations: s.service.Limiter().Status(),
		Mail:         "configured",
	}
	if !s.mailConfigured {
		resp.Mail = "unconfigured"
	}

	status := http.StatusOK
	if s.runs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Database = "ok"
		if err := s.runs.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health: database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
