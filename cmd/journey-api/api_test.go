package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/mocks"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/queue"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *mocks.MockEventBus) {
	t.Helper()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	app := NewAPI(
		log.Discard(),
		memory.NewPersistence(),
		queue.NewProducer(bus, delayqueue.NewMemoryDelayQueue()),
	)

	return app.App(), bus
}

func request(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := request(t, app, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Journey API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := request(t, app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	status, body = request(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)
}

func TestAPI_ManualStartPublishesFirstUnit(t *testing.T) {
	t.Parallel()

	app, bus := setupTestApp(t)

	status, body := request(t, app, http.MethodPost, "/journeys", map[string]any{
		"organization_id": "org-1",
		"name":            "Onboarding",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Journey
	require.NoError(t, json.Unmarshal(body, &created))

	status, body = request(t, app, http.MethodPost, "/journeys/"+created.ID+"/versions", map[string]any{
		"steps": []map[string]any{
			{"id": "welcome", "type": "action", "config": map[string]any{"action": "send_email", "templateId": "tpl-1"}},
			{"id": "done", "type": "exit"},
		},
		"connections": []map[string]any{{"from_step_id": "welcome", "to_step_id": "done"}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var version models.JourneyVersion
	require.NoError(t, json.Unmarshal(body, &version))

	status, body = request(t, app, http.MethodPost, "/journeys/"+created.ID+"/versions/"+version.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = request(t, app, http.MethodPost, "/journeys/"+created.ID+"/executions", map[string]any{"contact_id": "contact-1"})
	require.Equal(t, http.StatusCreated, status, string(body))

	var execution models.JourneyExecution
	require.NoError(t, json.Unmarshal(body, &execution))

	bus.AssertCalled(t, "Publish", mock.Anything, execution.ID, mock.MatchedBy(func(event events.ExecuteStep) bool {
		return event.ExecutionID == execution.ID && event.ContactID == "contact-1"
	}))
}
