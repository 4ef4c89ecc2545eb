package scheduler

// Partition and hash key names, matching spec §6 ("Persisted key layout in KV").
const (
	keyReady      = "ready"
	keyScheduled  = "scheduled"
	keyProcessing = "processing"
	keyFailed     = "failed"
	keyStatus     = "status" // hash: id -> StatusRecord JSON
)

func jobKey(id string) string {
	return "job:" + id
}
