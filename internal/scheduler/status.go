package scheduler

import (
	"encoding/json"

	"github.com/itskum47/mailforge/internal/task"
)

// mustEncodeStatus marshals a StatusRecord. StatusRecord's fields are all
// JSON-safe primitives, so this cannot realistically fail; on the
// unreachable error path it degrades to an empty object rather than
// panicking, since a status-hash write is never worth aborting a partition
// transition over.
func mustEncodeStatus(t *task.Task) string {
	buf, err := json.Marshal(t.StatusRecord())
	if err != nil {
		return "{}"
	}
	return string(buf)
}

func decodeStatus(raw string) (task.StatusRecord, bool, error) {
	var rec task.StatusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return task.StatusRecord{}, false, err
	}
	return rec, true, nil
}
