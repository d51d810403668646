package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
)

func TestNew(t *testing.T) {
	before := time.Now().UTC()

	evt, err := event.New("auth", event.TypeUserAuthenticated, nil, "")
	require.NoError(t, err)

	assert.NotEmpty(t, evt.ID())
	assert.Equal(t, event.TypeUserAuthenticated, evt.Type())
	assert.Equal(t, "auth", evt.IntegrationID())
	assert.Equal(t, "User Authenticated", evt.Message().Title)
	assert.Equal(t, "generic", evt.Message().Body)
	assert.Nil(t, evt.DocumentData())

	assert.Equal(t, time.UTC, evt.Timestamp().Location())
	assert.False(t, evt.Timestamp().Before(before), "timestamp must not precede the call")
}

func TestNewUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		evt, err := event.New("test", event.TypeTestMessage, nil, "hi")
		require.NoError(t, err)
		require.False(t, seen[evt.ID()], "duplicate id %s", evt.ID())
		seen[evt.ID()] = true
	}
}

func TestNewOptions(t *testing.T) {
	local := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))

	evt, err := event.New("test", event.TypeTestMessage, nil, "body",
		event.WithEventID("custom-id"),
		event.WithTimestamp(local),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-id", evt.ID())
	assert.True(t, evt.Timestamp().Equal(local))
	assert.Equal(t, time.UTC, evt.Timestamp().Location())
	assert.Equal(t, "body", evt.Message().Body)
}

func TestNewValidation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		source    string
		eventType event.EventType
		data      event.DocumentData
		field     string
	}{
		{"empty integration", "", event.TypeTestMessage, nil, "integration_id"},
		{"unknown type", "auth", event.EventType("nope"), nil, "event_type"},
		{"signup without email", "auth", event.TypeUserSignup, event.UserSignupData{Username: "ann"}, "email"},
		{"token without token", "auth", event.TypeTokenRefresh, event.TokenRefreshData{Username: "ann"}, "token"},
		{"inverted webhook window", "scheduler", event.TypeWebhookTask,
			event.WebhookData{WebhookStartDT: now, WebhookEndDT: now.Add(-time.Minute)}, "webhook_start_dt"},
		{"group info op", "groups", event.TypeGroupUpdated,
			event.GroupData{GroupID: "g1", Op: event.OperationInfo}, "op"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := event.New(tt.source, tt.eventType, tt.data, "")
			require.Error(t, err)
			assert.Nil(t, evt)

			var valErr *gherrors.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
}

func TestNewWithRegistry(t *testing.T) {
	reg := event.NewTypeRegistry()
	require.NoError(t, reg.Register(event.TypeDefinition{Type: "meal_planned", Owner: "mealplan"}))

	evt, err := event.New("mealplan", "meal_planned", nil, "", event.WithRegistry(reg))
	require.NoError(t, err)
	assert.Equal(t, "Meal Planned", evt.Message().Title)

	_, err = event.New("mealplan", "meal_planned", nil, "")
	assert.Error(t, err, "default registry does not know the plugin type")
}

func TestEventJSON(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)

	evt, err := event.New("scheduler", event.TypeWebhookTask, event.WebhookData{
		WebhookStartDT: start,
		WebhookEndDT:   end,
		WebhookBody:    json.RawMessage(`{"recipes":[1,2]}`),
	}, "")
	require.NoError(t, err)

	b, err := json.Marshal(evt)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "webhook_task", raw["event_type"])
	assert.Equal(t, evt.ID(), raw["event_id"])
	doc := raw["document_data"].(map[string]any)
	assert.Equal(t, "webhook", doc["kind"])
	assert.Equal(t, "generic", doc["document_type"])
	assert.Equal(t, "info", doc["operation"])

	var decoded event.Event
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, evt.ID(), decoded.ID())
	assert.True(t, evt.Timestamp().Equal(decoded.Timestamp()))
	assert.Equal(t, evt.Message(), decoded.Message())

	wd, ok := decoded.DocumentData().(event.WebhookData)
	require.True(t, ok, "payload should decode as WebhookData, got %T", decoded.DocumentData())
	assert.True(t, wd.WebhookStartDT.Equal(start))
	assert.True(t, wd.WebhookEndDT.Equal(end))
	assert.JSONEq(t, `{"recipes":[1,2]}`, string(wd.WebhookBody))
}

func TestEventPayloadIsolated(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	body := json.RawMessage(`{"n":1}`)

	evt, err := event.New("scheduler", event.TypeWebhookTask, event.WebhookData{
		WebhookStartDT: start,
		WebhookEndDT:   start.Add(time.Minute),
		WebhookBody:    body,
	}, "")
	require.NoError(t, err)

	body[5] = '9'
	got := evt.DocumentData().(event.WebhookData)
	assert.JSONEq(t, `{"n":1}`, string(got.WebhookBody), "caller's slice is not shared")

	got.WebhookBody[5] = '7'
	again := evt.DocumentData().(event.WebhookData)
	assert.JSONEq(t, `{"n":1}`, string(again.WebhookBody), "listener's copy is not shared")
}

func TestEventJSONNilPayload(t *testing.T) {
	evt, err := event.New("auth", event.TypeUserAuthenticated, nil, "")
	require.NoError(t, err)

	b, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"document_data":null`)

	var decoded event.Event
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Nil(t, decoded.DocumentData())
}

func TestEventUnmarshalMissingID(t *testing.T) {
	var decoded event.Event
	err := json.Unmarshal([]byte(`{"event_type":"test_message"}`), &decoded)
	assert.Error(t, err)
}
