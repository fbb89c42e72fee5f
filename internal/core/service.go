package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/topsis/internal/events"
	"github.com/JonMunkholm/topsis/internal/logging"
	"github.com/JonMunkholm/topsis/internal/mail"
	"github.com/JonMunkholm/topsis/internal/metrics"
)

// DefaultEmailBody is the plain-text body of every result email.
const DefaultEmailBody = "The Topsis analysis is complete. Please find the result file attached."

// DefaultEmailSubject is used when ServiceConfig.Subject is empty.
const DefaultEmailSubject = "Topsis Analysis Results"

// Mailer delivers a composed message.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ArtifactStore persists a result file and returns where it was written.
type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
}

// RunRecorder keeps a history of completed calculations.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// EventPublisher announces calculation lifecycle events.
type EventPublisher interface {
	Publish(subject string, data any) error
}

// RunRecord is one completed calculation as stored in run history.
// Recipient and ClientIP are stored but never serialised.
type RunRecord struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Recipient    string    `json:"-"`
	Rows         int       `json:"rows"`
	Criteria     int       `json:"criteria"`
	Weights      string    `json:"weights"`
	Impacts      string    `json:"impacts"`
	Delivered    bool      `json:"delivered"`
	DeliveryKind string    `json:"delivery_kind,omitempty"`
	ArtifactPath string    `json:"artifact_path"`
	DurationMs   int64     `json:"duration_ms"`
	ClientIP     string    `json:"-"`
}

// CalculationRequest is one submitted form. File is nil when nothing was uploaded.
type CalculationRequest struct {
	File     io.Reader
	FileName string
	Weights  string
	Impacts  string
	Email    string
}

// CalculationOutcome describes a calculation that ran to completion, whether
// or not the email went out.
type CalculationOutcome struct {
	ID           uuid.UUID
	Dataset      *Dataset
	Ranking      *Ranking
	ArtifactPath string

	Delivered    bool
	DeliveryKind mail.Kind // empty when Delivered
	DeliveryErr  error

	Message  string
	Duration time.Duration
}

// MsgDeliveryFailed is the response text whenever the result email could not
// be sent. The failure kind travels separately in X-Delivery-Status.
const MsgDeliveryFailed = "Calculation complete, but failed to send email. Check your SMTP settings."

// StatusMessage is the response text for a completed calculation. kind is
// empty when the email was sent.
func StatusMessage(email string, kind mail.Kind) string {
	if kind == "" {
		return fmt.Sprintf("Processing complete. Result has been emailed to %s.", email)
	}
	return MsgDeliveryFailed
}

// Dependencies are the collaborators of a Service. Recorder, Publisher and
// Metrics are optional.
type Dependencies struct {
	Mailer    Mailer
	Artifacts ArtifactStore
	Limiter   *CalculationLimiter
	Recorder  RunRecorder
	Publisher EventPublisher
	Metrics   *metrics.Metrics
}

// ServiceConfig holds the message templates and event naming.
type ServiceConfig struct {
	Subject     string
	Body        string
	EventPrefix string
}

// Service runs the calculation pipeline.
type Service struct {
	mailer    Mailer
	artifacts ArtifactStore
	limiter   *CalculationLimiter
	recorder  RunRecorder
	publisher EventPublisher
	metrics   *metrics.Metrics
	cfg       ServiceConfig
	now       func() time.Time
}

// NewService creates a Service. Mailer and Artifacts are required; a nil
// Limiter gets the default limits.
func NewService(deps Dependencies, cfg ServiceConfig) (*Service, error) {
	if deps.Mailer == nil {
		return nil, errors.New("core: mailer is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("core: artifact store is required")
	}
	if deps.Limiter == nil {
		deps.Limiter = NewCalculationLimiter(0, 0)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultEmailSubject
	}
	if cfg.Body == "" {
		cfg.Body = DefaultEmailBody
	}
	if cfg.EventPrefix == "" {
		cfg.EventPrefix = "topsis"
	}

	return &Service{
		mailer:    deps.Mailer,
		artifacts: deps.Artifacts,
		limiter:   deps.Limiter,
		recorder:  deps.Recorder,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Limiter returns the service's calculation limiter.
func (s *Service) Limiter() *CalculationLimiter {
	return s.limiter
}

// Calculate parses, validates, ranks, stores and mails one request.
//
// Input problems return an *InputError (wrapping a *ValidationError when a
// rule failed). ErrTooManyCalculations is returned when no slot frees up in
// time. A failed delivery is not an error: the outcome reports it.
func (s *Service) Calculate(ctx context.Context, req CalculationRequest) (*CalculationOutcome, error) {
	start := s.now()

	if req.File == nil {
		return nil, s.reject(ctx, start, &InputError{Kind: InputMissingFile, Message: MsgNoFile})
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		outcome := metrics.OutcomeBusy
		if !errors.Is(err, ErrTooManyCalculations) {
			outcome = metrics.OutcomeError
		}
		s.metrics.CalculationFinished(outcome, s.now().Sub(start))
		return nil, err
	}
	defer s.limiter.Release()
	s.metrics.InFlight(1)
	defer s.metrics.InFlight(-1)

	id := uuid.New()
	logger := logging.WithFields(ctx, "run_id", id.String())
	client := ClientFromContext(ctx)
	logger.Info("calculation started", "client_ip", client.IP, "user_agent", client.UserAgent)

	ds, err := ParseDataset(req.File)
	if err != nil {
		return nil, s.reject(ctx, start, &InputError{Kind: InputUnreadable, Message: MsgUnreadable, Err: err})
	}
	logger.Debug("dataset parsed", "rows", ds.RowCount(), "columns", ds.ColumnCount(), "filename", req.FileName)

	if err := Validate(ds, req.Weights, req.Impacts); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.metrics.ValidationFailed(ve.Rule.String())
		}
		return nil, s.reject(ctx, start, &InputError{Kind: InputInvalid, Message: err.Error(), Err: err})
	}

	weights, err := ParseWeights(req.Weights)
	if err != nil {
		msg := ErrWeightNotNumeric.Error()
		if errors.Is(err, ErrWeightNegative) {
			msg = ErrWeightNegative.Error()
		}
		return nil, s.reject(ctx, start, &InputError{Kind: InputBadWeights, Message: msg, Err: err})
	}

	ranking, err := Rank(ds, weights, ParseImpacts(req.Impacts))
	if err != nil {
		s.metrics.CalculationFinished(metrics.OutcomeError, s.now().Sub(start))
		return nil, err
	}
	s.metrics.DatasetRanked(ds.RowCount())

	var buf bytes.Buffer
	if err := WriteResult(&buf, ds, ranking); err != nil {
		s.metrics.CalculationFinished(metrics.OutcomeError, s.now().Sub(start))
		return nil, err
	}
	path, err := s.artifacts.Save(ArtifactName(id), buf.Bytes())
	if err != nil {
		s.metrics.CalculationFinished(metrics.OutcomeError, s.now().Sub(start))
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	logger.Info("result artifact written", "path", path, "rows", ds.RowCount(), "bytes", buf.Len())

	sendErr := s.mailer.Send(ctx, mail.Message{
		To:         req.Email,
		Subject:    s.cfg.Subject,
		Body:       s.cfg.Body,
		Attachment: &mail.Attachment{Name: AttachmentName, Data: buf.Bytes()},
	})

	out := &CalculationOutcome{
		ID:           id,
		Dataset:      ds,
		Ranking:      ranking,
		ArtifactPath: path,
		Delivered:    sendErr == nil,
		DeliveryKind: mail.KindOf(sendErr),
		DeliveryErr:  sendErr,
	}
	out.Message = StatusMessage(req.Email, out.DeliveryKind)
	out.Duration = s.now().Sub(start)

	if sendErr != nil {
		logger.Warn("result email failed",
			"kind", out.DeliveryKind,
			"reason", out.DeliveryKind.Description(),
			"code", MapError(sendErr).Code,
			"error", sendErr,
		)
		s.metrics.DeliveryAttempted(string(out.DeliveryKind))
		s.metrics.CalculationFinished(metrics.OutcomeDegraded, out.Duration)
	} else {
		logger.Info("result emailed", "duration_ms", out.Duration.Milliseconds())
		s.metrics.DeliveryAttempted(metrics.OutcomeSent)
		s.metrics.CalculationFinished(metrics.OutcomeSent, out.Duration)
	}

	s.recordRun(ctx, req, out)
	s.announce(ctx, out)
	return out, nil
}

// reject logs and counts an input error, then returns it.
func (s *Service) reject(ctx context.Context, start time.Time, ie *InputError) error {
	code := MapError(ie).Code
	logging.FromContext(ctx).Info("calculation rejected",
		"kind", ie.Kind,
		"code", code,
		"reason", ie.Message,
		"cause", ie.Err,
	)
	s.metrics.CalculationFinished(metrics.OutcomeRejected, s.now().Sub(start))

	if err := s.publisher.Publish(events.SubjectCalculationRejected(s.cfg.EventPrefix), events.CalculationRejectedEvent{
		Code:      code,
		Reason:    string(ie.Kind),
		Timestamp: s.now().UTC(),
	}); err != nil {
		logging.FromContext(ctx).Warn("publish rejection failed", "error", err)
	}
	return ie
}

func (s *Service) recordRun(ctx context.Context, req CalculationRequest, out *CalculationOutcome) {
	if s.recorder == nil {
		return
	}
	run := RunRecord{
		ID:           out.ID,
		CreatedAt:    s.now().UTC(),
		Recipient:    req.Email,
		Rows:         out.Dataset.RowCount(),
		Criteria:     out.Dataset.CriteriaCount(),
		Weights:      req.Weights,
		Impacts:      req.Impacts,
		Delivered:    out.Delivered,
		DeliveryKind: string(out.DeliveryKind),
		ArtifactPath: out.ArtifactPath,
		DurationMs:   out.Duration.Milliseconds(),
		ClientIP:     ClientFromContext(ctx).IP,
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		logging.WithFields(ctx, "run_id", out.ID.String()).Warn("record run failed", "error", err)
	}
}

func (s *Service) announce(ctx context.Context, out *CalculationOutcome) {
	logger := logging.WithFields(ctx, "run_id", out.ID.String())
	runID := out.ID.String()

	completed := events.CalculationCompletedEvent{
		RunID:      runID,
		Rows:       out.Dataset.RowCount(),
		Criteria:   out.Dataset.CriteriaCount(),
		Delivered:  out.Delivered,
		DurationMs: out.Duration.Milliseconds(),
		Timestamp:  s.now().UTC(),
	}
	if best := out.Ranking.Best(); best >= 0 {
		completed.BestLabel = out.Dataset.Rows[best][0]
		completed.BestScore = out.Ranking.Scores[best]
	}
	if err := s.publisher.Publish(events.SubjectCalculationCompleted(s.cfg.EventPrefix, runID), completed); err != nil {
		logger.Warn("publish completion failed", "error", err)
	}

	if out.Delivered {
		return
	}
	if err := s.publisher.Publish(events.SubjectDeliveryFailed(s.cfg.EventPrefix, runID), events.DeliveryFailedEvent{
		RunID:     runID,
		Kind:      string(out.DeliveryKind),
		Timestamp: s.now().UTC(),
	}); err != nil {
		logger.Warn("publish delivery failure failed", "error", err)
	}
}
