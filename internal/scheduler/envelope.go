package scheduler

import (
	"encoding/json"
	"fmt"
	"time"
)

// injectEnvelope stamps correlation_id and timestamp onto a payload at
// enqueue time (spec §6: "Each kind's payload additionally carries
// correlation_id and timestamp injected by the scheduler"). Payloads are
// decoded generically here since the scheduler has no reason to know the
// kind-specific shape — only task.payload.Envelope's two field names.
func injectEnvelope(raw json.RawMessage, correlationID string, ts time.Time) (json.RawMessage, error) {
	var fields map[string]any
	if len(raw) == 0 {
		fields = map[string]any{}
	} else if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("scheduler: payload is not a JSON object: %w", err)
	}
	fields["correlation_id"] = correlationID
	fields["timestamp"] = ts.UnixMilli()

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("scheduler: re-encoding payload: %w", err)
	}
	return out, nil
}
