package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"linear_reminder_bot/internal/app"
	"linear_reminder_bot/internal/domain/tracking"

	"github.com/go-playground/validator/v10"
)

// Only issue events move the dwell timer; everything else is acknowledged and dropped.
const trackedEventType = "Issue"

var validate = validator.New()

// issueWebhook is the subset of a Linear data-change webhook we read.
//
//	{"action":"update","type":"Issue","createdAt":"2024-03-28T05:10:45.264Z",
//	 "data":{"id":"bf74...","state":{"name":"In Progress"}},
//	 "updatedFrom":{"stateId":"3e0d..."},"webhookTimestamp":1711602645358}
type issueWebhook struct {
	Action           string                     `json:"action" validate:"required,oneof=create update remove"`
	Type             string                     `json:"type" validate:"required"`
	CreatedAt        time.Time                  `json:"createdAt"`
	WebhookTimestamp int64                      `json:"webhookTimestamp"`
	Data             json.RawMessage            `json:"data"`
	UpdatedFrom      map[string]json.RawMessage `json:"updatedFrom"`
}

type issueData struct {
	ID    string      `json:"id" validate:"required"`
	State *issueState `json:"state" validate:"required"`
}

type issueState struct {
	Name string `json:"name" validate:"required"`
}

// DecodeIssueEvent parses the raw body into a status change. It returns
// (nil, nil) for well-formed events of a type that is not tracked.
func DecodeIssueEvent(body []byte) (*tracking.StatusChange, error) {
	var env issueWebhook
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrBadPayload, err)
	}
	if err := structError(validate.Struct(env)); err != nil {
		return nil, err
	}
	if env.Type != trackedEventType {
		return nil, nil
	}

	occurredAt := env.CreatedAt
	if occurredAt.IsZero() && env.WebhookTimestamp > 0 {
		occurredAt = time.UnixMilli(env.WebhookTimestamp)
	}
	if occurredAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", app.ErrBadPayload)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", app.ErrBadPayload)
	}
	var data issueData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: data: %v", app.ErrBadPayload, err)
	}

	ev := &tracking.StatusChange{
		ItemID:     data.ID,
		OccurredAt: occurredAt.UTC(),
	}
	switch env.Action {
	case "remove":
		if err := structError(validate.StructPartial(data, "ID")); err != nil {
			return nil, err
		}
		ev.Removed = true
		return ev, nil
	case "create":
		ev.PreviousChanged = true
	case "update":
		_, ev.PreviousChanged = env.UpdatedFrom["stateId"]
	}
	if err := structError(validate.Struct(data)); err != nil {
		return nil, err
	}
	ev.NewStatus = data.State.Name
	return ev, nil
}

// structError flattens validator output into a single ErrBadPayload.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", app.ErrBadPayload, err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", app.ErrBadPayload, strings.Join(msgs, "; "))
}
