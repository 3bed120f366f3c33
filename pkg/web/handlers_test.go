package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/mocks"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/queue"
	"github.com/dukex/journey/pkg/services"
	"github.com/dukex/journey/pkg/testutil"
	"github.com/dukex/journey/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app   *fiber.App
	store *memory.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	store := memory.NewPersistence()
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	producer := queue.NewProducer(bus, delayqueue.NewMemoryDelayQueue())

	handlers := web.NewAPIHandlers(
		store,
		services.NewAuthoring(log.Discard(), store),
		services.NewPublishing(log.Discard(), store),
		journey.NewStarter(log.Discard(), store, producer),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return &testApp{app: app, store: store, bus: bus}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

// publishedJourney drives the API to create and publish an action -> exit journey.
func (a *testApp) publishedJourney(t *testing.T) models.Journey {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/journeys", web.CreateJourneyRequest{
		OrganizationID: testutil.OrganizationID,
		Name:           "Onboarding",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	created := decode[models.Journey](t, body)

	status, body = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions", web.SaveDraftRequest{
		Steps: []web.StepRequest{
			{ID: "welcome", Type: "action", Config: map[string]any{"action": "send_email", "templateId": "tpl-welcome"}},
			{ID: "done", Type: "exit"},
		},
		Connections: []web.ConnectionRequest{{FromStepID: "welcome", ToStepID: "done"}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	version := decode[models.JourneyVersion](t, body)

	status, body = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions/"+version.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	return decode[models.Journey](t, body)
}

func TestAPIHandlers_CreateJourney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			requestBody:    web.CreateJourneyRequest{OrganizationID: "org-1", Name: "Welcome series"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing organization",
			requestBody:    web.CreateJourneyRequest{Name: "Welcome series"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateJourneyRequest{OrganizationID: "org-1", Name: "We"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			status, body := a.do(t, http.MethodPost, "/journeys", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if status == http.StatusCreated {
				created := decode[models.Journey](t, body)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, models.JourneyStatusDraft, created.Status)
			} else {
				assert.Contains(t, string(body), "validation_error")
			}
		})
	}
}

func TestAPIHandlers_PublishAndLifecycle(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	published := a.publishedJourney(t)

	assert.Equal(t, models.JourneyStatusActive, published.Status)
	assert.NotEmpty(t, published.PublishedVersionID)

	status, body := a.do(t, http.MethodGet, "/journeys/"+published.ID+"/versions/"+published.PublishedVersionID, nil)
	require.Equal(t, http.StatusOK, status)

	version := decode[models.JourneyVersion](t, body)
	require.Len(t, version.Steps, 2)
	require.Len(t, version.Connections, 1)
	assert.Equal(t, version.Steps[0].ID, version.Connections[0].FromStepID)

	status, body = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.JourneyStatusPaused, decode[models.Journey](t, body).Status)

	status, _ = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/pause", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.JourneyStatusActive, decode[models.Journey](t, body).Status)

	status, _ = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "invalid_transition")

	status, _ = a.do(t, http.MethodPost, "/journeys/missing/pause", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_SaveDraft_Invalid(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/journeys", web.CreateJourneyRequest{OrganizationID: "org-1", Name: "Draft only"})
	require.Equal(t, http.StatusCreated, status)

	created := decode[models.Journey](t, body)

	status, _ = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions", web.SaveDraftRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions", web.SaveDraftRequest{
		Steps:       []web.StepRequest{{ID: "a", Type: "exit"}},
		Connections: []web.ConnectionRequest{{FromStepID: "a", ToStepID: "ghost"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "ghost")

	status, body = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions", web.SaveDraftRequest{
		Steps: []web.StepRequest{{ID: "a", Type: "delay", Config: map[string]any{"unit": "fortnights"}}},
	})
	require.Equal(t, http.StatusCreated, status)

	version := decode[models.JourneyVersion](t, body)

	status, body = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/versions/"+version.ID+"/publish", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid step config")
}

func TestAPIHandlers_SaveTrigger(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	published := a.publishedJourney(t)

	status, body := a.do(t, http.MethodPost, "/journeys/"+published.ID+"/triggers", web.SaveTriggerRequest{
		Type:    "segment",
		Config:  map[string]any{"segmentId": "seg-vip"},
		Enabled: true,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	trigger := decode[models.JourneyTrigger](t, body)
	assert.Equal(t, published.ID, trigger.JourneyID)

	status, _ = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/triggers", web.SaveTriggerRequest{Type: "webhook"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	published := a.publishedJourney(t)

	status, _ := a.do(t, http.MethodPost, "/journeys/"+published.ID+"/executions", web.StartExecutionRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodPost, "/journeys/"+published.ID+"/executions", web.StartExecutionRequest{ContactID: "contact-1"})
	require.Equal(t, http.StatusCreated, status, string(body))

	execution := decode[models.JourneyExecution](t, body)
	assert.Equal(t, models.ExecutionStatusActive, execution.Status)

	a.bus.AssertCalled(t, "Publish", mock.Anything, execution.ID, mock.MatchedBy(func(e events.ExecuteStep) bool {
		return e.ExecutionID == execution.ID && e.StepID == execution.CurrentStepID
	}))

	status, body = a.do(t, http.MethodPost, "/journeys/"+published.ID+"/executions", web.StartExecutionRequest{ContactID: "contact-1"})
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, body = a.do(t, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, status)

	detail := decode[web.ExecutionResponse](t, body)
	assert.Equal(t, execution.ID, detail.Execution.ID)
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, "execution started", detail.Logs[0].Message)

	status, body = a.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", web.CancelExecutionRequest{Reason: "unsubscribed"})
	require.Equal(t, http.StatusOK, status)

	canceled := decode[models.JourneyExecution](t, body)
	assert.Equal(t, models.ExecutionStatusCanceled, canceled.Status)
	assert.Equal(t, "unsubscribed", canceled.CancelReason)

	status, body = a.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unsubscribed", decode[models.JourneyExecution](t, body).CancelReason)

	status, _ = a.do(t, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_StartExecution_InactiveJourney(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/journeys", web.CreateJourneyRequest{OrganizationID: "org-1", Name: "Never published"})
	require.Equal(t, http.StatusCreated, status)

	created := decode[models.Journey](t, body)

	status, _ = a.do(t, http.MethodPost, "/journeys/"+created.ID+"/executions", web.StartExecutionRequest{ContactID: "contact-1"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "healthy")
}

func TestAPIHandlers_HealthCheck_Unhealthy(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("database unreachable"))

	handlers := web.NewAPIHandlers(store, nil, nil, nil, validator.New())

	app := fiber.New()
	handlers.Register(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
