package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/rabbitmq"
	"narration-pipeline/service"
)

type stubPipeline struct {
	processResult *dto.ProcessResult
	processErr    error
	cutResult     *dto.CutResult
	cutErr        error
	lastProcess   dto.ProcessMessage
	lastCut       dto.CutMessage
}

func (s *stubPipeline) Process(_ context.Context, message dto.ProcessMessage) (*dto.ProcessResult, error) {
	s.lastProcess = message
	return s.processResult, s.processErr
}

func (s *stubPipeline) Cut(_ context.Context, message dto.CutMessage) (*dto.CutResult, error) {
	s.lastCut = message
	return s.cutResult, s.cutErr
}

type stubLibrary struct {
	files      []*dto.AudioFileOut
	deleteErr  error
	lastActor  uuid.UUID
	lastFileId uuid.UUID
}

func (s *stubLibrary) Ingest(_ context.Context, _ service.IngestInput) (*dto.AudioFileOut, error) {
	return nil, nil
}

func (s *stubLibrary) ListFiles(_ context.Context) ([]*dto.AudioFileOut, error) {
	return s.files, nil
}

func (s *stubLibrary) GetFile(_ context.Context, _ uuid.UUID) (*dto.AudioFileOut, error) {
	return nil, nil
}

func (s *stubLibrary) DeleteFile(_ context.Context, actorId, id uuid.UUID) error {
	s.lastActor = actorId
	s.lastFileId = id
	return s.deleteErr
}

func (s *stubLibrary) ListSegments(_ context.Context, _ uuid.UUID) ([]*dto.AudioSegmentOut, error) {
	return nil, nil
}

func (s *stubLibrary) UpdateSegment(_ context.Context, _, _ uuid.UUID, _ dto.SegmentUpdate) (*dto.AudioSegmentOut, error) {
	return nil, nil
}

func (s *stubLibrary) DeleteSegment(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

type stubMappings struct {
	created    *dto.MappingOut
	createErr  error
	segment    *entities.AudioSegment
	resolveErr error
}

func (s *stubMappings) CreateMapping(_ context.Context, _ uuid.UUID, _ dto.MappingCreate) (*dto.MappingOut, error) {
	return s.created, s.createErr
}

func (s *stubMappings) PublishMapping(_ context.Context, _, _ uuid.UUID) (*dto.MappingOut, error) {
	return nil, nil
}

func (s *stubMappings) DeleteMapping(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

func (s *stubMappings) ResolvePublished(_ context.Context, _ uuid.UUID) (*entities.AudioSegment, error) {
	return s.segment, s.resolveErr
}

func newTestRouter(deps ServiceDependencies) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, deps)
	return r
}

func TestProcessFileStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"already processing", service.ErrAlreadyProcessing, http.StatusConflict},
		{"processing failed", service.ErrProcessingFailed, http.StatusUnprocessableEntity},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipeline := &stubPipeline{processErr: tc.err}
			router := newTestRouter(ServiceDependencies{Pipeline: pipeline})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/files/"+uuid.NewString()+"/process", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	pipeline := &stubPipeline{processErr: assert.AnError}
	router := newTestRouter(ServiceDependencies{Pipeline: pipeline})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/files/"+uuid.NewString()+"/process", nil)
	router.ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["error"])
}

func TestProcessFileSuccess(t *testing.T) {
	fileId := uuid.New()
	actor := uuid.New()
	pipeline := &stubPipeline{processResult: &dto.ProcessResult{
		AudioFileId:  fileId,
		DurationMs:   10000,
		SegmentCount: 3,
		Status:       "SEGMENTED",
	}}
	router := newTestRouter(ServiceDependencies{Pipeline: pipeline})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/files/"+fileId.String()+"/process", nil)
	req.Header.Set("X-Actor-Id", actor.String())
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fileId, pipeline.lastProcess.AudioFileId)
	assert.Equal(t, actor, pipeline.lastProcess.ActorId)

	var result dto.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.SegmentCount)
}

func TestInvalidPathId(t *testing.T) {
	router := newTestRouter(ServiceDependencies{Pipeline: &stubPipeline{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/files/not-a-uuid/process", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingActorHeaderFallsBackToNil(t *testing.T) {
	library := &stubLibrary{}
	router := newTestRouter(ServiceDependencies{Library: library})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/audio/files/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uuid.Nil, library.lastActor)
}

func TestCreateMappingRequiresBody(t *testing.T) {
	router := newTestRouter(ServiceDependencies{Mappings: &stubMappings{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/mappings", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMapping(t *testing.T) {
	mappings := &stubMappings{created: &dto.MappingOut{ID: uuid.New()}}
	router := newTestRouter(ServiceDependencies{Mappings: mappings})

	body, _ := json.Marshal(dto.MappingCreate{
		TextUnitId:     uuid.New(),
		AudioSegmentId: uuid.New(),
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/mappings", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestResolvePublishedNotFound(t *testing.T) {
	mappings := &stubMappings{resolveErr: service.ErrNotFound}
	router := newTestRouter(ServiceDependencies{Mappings: mappings})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/units/"+uuid.NewString()+"/published", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessQueueHandler(t *testing.T) {
	pipeline := &stubPipeline{processResult: &dto.ProcessResult{}}
	deps := ServiceDependencies{Pipeline: pipeline}

	message := dto.ProcessMessage{AudioFileId: uuid.New(), ActorId: uuid.New()}
	body, _ := json.Marshal(message)

	err := ProcessHandler(context.Background(), amqp.Delivery{Body: body}, deps)
	require.NoError(t, err)
	assert.Equal(t, message, pipeline.lastProcess)

	// A malformed message can never succeed and must not be redelivered.
	err = ProcessHandler(context.Background(), amqp.Delivery{Body: []byte("{broken")}, deps)
	assert.ErrorIs(t, err, rabbitmq.ErrNonRetryable)
}

func TestClassifyQueueError(t *testing.T) {
	assert.NoError(t, classifyQueueError(nil))

	assert.ErrorIs(t, classifyQueueError(service.ErrAlreadyProcessing), rabbitmq.ErrNonRetryable)
	assert.ErrorIs(t, classifyQueueError(service.ErrProcessingFailed), rabbitmq.ErrNonRetryable)
	assert.ErrorIs(t, classifyQueueError(service.ErrNotFound), rabbitmq.ErrNonRetryable)

	transient := errors.New("dial tcp: connection refused")
	got := classifyQueueError(transient)
	assert.Equal(t, transient, got)
	assert.False(t, errors.Is(got, rabbitmq.ErrNonRetryable))
}

func TestCutQueueHandler(t *testing.T) {
	pipeline := &stubPipeline{cutResult: &dto.CutResult{}}
	deps := ServiceDependencies{Pipeline: pipeline}

	message := dto.CutMessage{AudioFileId: uuid.New()}
	body, _ := json.Marshal(message)

	err := CutHandler(context.Background(), amqp.Delivery{Body: body}, deps)
	require.NoError(t, err)
	assert.Equal(t, message, pipeline.lastCut)
}
