package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/topsis/internal/events"
	"github.com/JonMunkholm/topsis/internal/mail"
	"github.com/JonMunkholm/topsis/internal/metrics"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type memArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (a *memArtifacts) Save(name string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.files == nil {
		a.files = make(map[string][]byte)
	}
	a.files[name] = append([]byte(nil), data...)
	return "/artifacts/" + name, nil
}

type fakeRecorder struct {
	runs []RunRecord
	err  error
}

func (r *fakeRecorder) RecordRun(_ context.Context, run RunRecord) error {
	r.runs = append(r.runs, run)
	return r.err
}

type fakePublisher struct {
	subjects []string
	payloads []any
}

func (p *fakePublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

const validCSV = "Fund Name,P1,P2,P3\nM1,0.84,0.71,6.7\nM2,0.91,0.83,7.0\nM3,0.79,0.62,4.8\n"

type harness struct {
	svc       *Service
	mailer    *mockMailer
	artifacts *memArtifacts
	recorder  *fakeRecorder
	publisher *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mailer:    &mockMailer{},
		artifacts: &memArtifacts{},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
	}
	svc, err := NewService(Dependencies{
		Mailer:    h.mailer,
		Artifacts: h.artifacts,
		Limiter:   NewCalculationLimiter(2, 50*time.Millisecond),
		Recorder:  h.recorder,
		Publisher: h.publisher,
		Metrics:   metrics.New(),
	}, ServiceConfig{EventPrefix: "test"})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func request(csv, weights, impacts string) CalculationRequest {
	return CalculationRequest{
		File:     strings.NewReader(csv),
		FileName: "data.csv",
		Weights:  weights,
		Impacts:  impacts,
		Email:    "alice@example.com",
	}
}

func TestCalculate_Success(t *testing.T) {
	h := newHarness(t)
	h.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m mail.Message) bool {
		return m.To == "alice@example.com" &&
			m.Subject == DefaultEmailSubject &&
			m.Body == DefaultEmailBody &&
			m.Attachment != nil && m.Attachment.Name == "result.csv"
	})).Return(nil).Once()

	out, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)
	h.mailer.AssertExpectations(t)

	assert.True(t, out.Delivered)
	assert.Empty(t, out.DeliveryKind)
	assert.Equal(t, "Processing complete. Result has been emailed to alice@example.com.", out.Message)
	assert.Len(t, out.Ranking.Scores, 3)

	data, ok := h.artifacts.files[ArtifactName(out.ID)]
	require.True(t, ok, "artifact not saved")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "Fund Name,P1,P2,P3,Topsis Score,Rank", lines[0])
	assert.Len(t, lines, 4)
	assert.Equal(t, "/artifacts/"+ArtifactName(out.ID), out.ArtifactPath)

	sent := h.mailer.Calls[0].Arguments.Get(1).(mail.Message)
	assert.Equal(t, data, sent.Attachment.Data)

	require.Len(t, h.recorder.runs, 1)
	run := h.recorder.runs[0]
	assert.Equal(t, out.ID, run.ID)
	assert.Equal(t, 3, run.Rows)
	assert.Equal(t, 3, run.Criteria)
	assert.True(t, run.Delivered)

	require.Len(t, h.publisher.subjects, 1)
	assert.Equal(t, "test.calculation."+out.ID.String()+".completed", h.publisher.subjects[0])
	completed := h.publisher.payloads[0].(events.CalculationCompletedEvent)
	assert.NotEmpty(t, completed.BestLabel)
}

func TestCalculate_DeliveryFailureIsSoft(t *testing.T) {
	tests := []struct {
		kind mail.Kind
	}{
		{mail.KindAuth},
		{mail.KindNetwork},
		{mail.KindRecipientRejected},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t)
			h.mailer.On("Send", mock.Anything, mock.Anything).
				Return(&mail.DeliveryError{Kind: tt.kind, Op: "auth", Err: errors.New("535 bad credentials")})

			out, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
			require.NoError(t, err)

			assert.False(t, out.Delivered)
			assert.Equal(t, tt.kind, out.DeliveryKind)
			assert.Equal(t, "Calculation complete, but failed to send email. Check your SMTP settings.", out.Message,
				"status text is the same for every failure kind")
			assert.Len(t, h.artifacts.files, 1, "artifact written despite failed delivery")
			assert.False(t, h.recorder.runs[0].Delivered)
			assert.Equal(t, string(tt.kind), h.recorder.runs[0].DeliveryKind)

			require.Len(t, h.publisher.subjects, 2)
			assert.Equal(t, "test.delivery."+out.ID.String()+".failed", h.publisher.subjects[1])
		})
	}
}

func TestCalculate_InputErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      CalculationRequest
		wantKind InputKind
		wantMsg  string
		wantRule Rule
	}{
		{
			name:     "no file",
			req:      CalculationRequest{Weights: "1,1", Impacts: "+,+", Email: "a@b.c"},
			wantKind: InputMissingFile,
			wantMsg:  "No file uploaded",
		},
		{
			name:     "empty file",
			req:      request("", "1,1", "+,+"),
			wantKind: InputUnreadable,
			wantMsg:  "Error: Could not read CSV file.",
		},
		{
			name:     "ragged csv",
			req:      request("a,b,c\n1,2\n", "1,1", "+,+"),
			wantKind: InputUnreadable,
			wantMsg:  "Error: Could not read CSV file.",
		},
		{
			name:     "two columns",
			req:      request("Fund,P1\nM1,1\n", "1", "+"),
			wantKind: InputInvalid,
			wantMsg:  "Error: Input file must contain at least three columns.",
			wantRule: RuleColumnCount,
		},
		{
			name:     "two weights three criteria",
			req:      request(validCSV, "1,1", "+,+,-"),
			wantKind: InputInvalid,
			wantMsg:  "Error: Number of weights (2), impacts (3), and data columns (3) must be equal.",
			wantRule: RuleCountMismatch,
		},
		{
			name:     "out of range criteria value",
			req:      request("Name,A,B,C\nM1,1e999,2,3\nM2,4,5,6\n", "1,1,1", "+,+,-"),
			wantKind: InputInvalid,
			wantMsg:  "Error: Column 'A' contains non-numeric values.",
			wantRule: RuleNonNumeric,
		},
		{
			name:     "non-numeric weight",
			req:      request(validCSV, "1,x,1", "+,+,-"),
			wantKind: InputBadWeights,
			wantMsg:  "Error: Weights must be numeric.",
		},
		{
			name:     "negative weight",
			req:      request(validCSV, "1,-1,1", "+,+,-"),
			wantKind: InputBadWeights,
			wantMsg:  "Error: Weights must be non-negative.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			out, err := h.svc.Calculate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, out)

			var ie *InputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.wantKind, ie.Kind)
			assert.Equal(t, tt.wantMsg, err.Error())

			if tt.wantRule != 0 {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantRule, ve.Rule)
			}

			h.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			assert.Empty(t, h.artifacts.files)
			assert.Empty(t, h.recorder.runs)
			assert.Equal(t, []string{"test.calculation.rejected"}, h.publisher.subjects)
		})
	}
}

func TestCalculate_Busy(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.svc.Limiter().TryAcquire())
	require.True(t, h.svc.Limiter().TryAcquire())
	defer h.svc.Limiter().Release()
	defer h.svc.Limiter().Release()

	_, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	assert.ErrorIs(t, err, ErrTooManyCalculations)
	h.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCalculate_ArtifactFailure(t *testing.T) {
	h := newHarness(t)
	h.artifacts.err = errors.New("disk full")

	_, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	var ie *InputError
	assert.False(t, errors.As(err, &ie), "storage failure must not look like an input error")
	h.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCalculate_RecorderFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t)
	h.recorder.err = errors.New("connection refused")
	h.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	out, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)
	assert.True(t, out.Delivered)
}

func TestCalculate_ArtifactNamesDiffer(t *testing.T) {
	h := newHarness(t)
	h.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	a, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)
	b, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ArtifactPath, b.ArtifactPath)
	assert.Len(t, h.artifacts.files, 2)
}

func TestCalculate_RecordsClientIP(t *testing.T) {
	h := newHarness(t)
	h.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	ctx := WithClient(context.Background(), ClientInfo{IP: "203.0.113.9", UserAgent: "curl/8.0"})
	_, err := h.svc.Calculate(ctx, request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", h.recorder.runs[0].ClientIP)
}

func TestCalculate_HugeWeightsRankNormally(t *testing.T) {
	h := newHarness(t)
	h.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	unit, err := h.svc.Calculate(context.Background(), request(validCSV, "1,1,1", "+,+,-"))
	require.NoError(t, err)
	huge, err := h.svc.Calculate(context.Background(), request(validCSV, "1e300,1e300,1e300", "+,+,-"))
	require.NoError(t, err)

	assert.Equal(t, unit.Ranking.Ranks, huge.Ranking.Ranks)
	for i, s := range huge.Ranking.Scores {
		assert.InDelta(t, unit.Ranking.Scores[i], s, 1e-9)
	}
	assert.NotContains(t, string(h.artifacts.files[ArtifactName(huge.ID)]), "NaN")
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Dependencies{Artifacts: &memArtifacts{}}, ServiceConfig{})
	assert.Error(t, err)
	_, err = NewService(Dependencies{Mailer: &mockMailer{}}, ServiceConfig{})
	assert.Error(t, err)

	svc, err := NewService(Dependencies{Mailer: &mockMailer{}, Artifacts: &memArtifacts{}}, ServiceConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrentCalculations, svc.Limiter().Status().MaxConcurrent)
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Processing complete. Result has been emailed to bob@example.com.", StatusMessage("bob@example.com", ""))
	assert.Equal(t, MsgDeliveryFailed, StatusMessage("bob@example.com", mail.KindUnknown))
	assert.Equal(t, MsgDeliveryFailed, StatusMessage("bob@example.com", mail.KindAuth))
}
