package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/itskum47/mailforge/internal/observability"
)

// Status is the bucketed health verdict (spec §4.8).
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Report is the cached health analysis result.
type Report struct {
	TotalTerms          int
	TotalDocuments      int
	AvgTermFrequency    float64
	HighFrequencyTerms  int
	MediumFrequencyTerms int
	LowFrequencyTerms   int
	PostingStorageBytes int64
	MetaStorageBytes    int64
	Status              Status
	Issues              []string
	ComputedAt          time.Time
}

// Analyze implements spec §4.8's health analysis, cached for
// healthCacheTTL so repeated calls (e.g. from the Alert Monitor) don't
// re-scan the whole index on every check.
func (o *Optimizer) Analyze(ctx context.Context) (Report, error) {
	o.healthMu.Lock()
	defer o.healthMu.Unlock()

	if o.healthCache != nil && time.Since(o.healthCache.ComputedAt) < healthCacheTTL {
		return *o.healthCache, nil
	}

	report, err := o.computeHealth(ctx)
	if err != nil {
		return Report{}, err
	}
	o.healthCache = &report
	return report, nil
}

func (o *Optimizer) computeHealth(ctx context.Context) (Report, error) {
	postingKeys, err := o.store.Scan(ctx, "posting:*")
	if err != nil {
		return Report{}, fmt.Errorf("optimizer: health: scanning postings: %w", err)
	}

	var (
		totalFreq           int64
		postingBytes        int64
		freqs               = make([]int64, 0, len(postingKeys))
	)
	for _, key := range postingKeys {
		members, err := o.store.ZRange(ctx, key, 0, -1)
		if err != nil {
			return Report{}, err
		}
		freqs = append(freqs, int64(len(members)))
		totalFreq += int64(len(members))
		for _, m := range members {
			postingBytes += int64(len(m.Value)) + 8 // value bytes + float64 score
		}
	}

	avgFreq := 0.0
	if len(freqs) > 0 {
		avgFreq = float64(totalFreq) / float64(len(freqs))
	}

	var high, medium, low int
	for _, f := range freqs {
		switch {
		case float64(f) > 2*avgFreq:
			high++
		case float64(f) < avgFreq/2:
			low++
		default:
			medium++
		}
	}

	docKeys, err := o.store.Scan(ctx, "doc:*")
	if err != nil {
		return Report{}, fmt.Errorf("optimizer: health: scanning docs: %w", err)
	}
	var totalDocs int
	for _, key := range docKeys {
		n, err := o.store.HLen(ctx, key)
		if err != nil {
			return Report{}, err
		}
		totalDocs += int(n)
	}

	metaKeys, err := o.store.Scan(ctx, "meta:*")
	if err != nil {
		return Report{}, fmt.Errorf("optimizer: health: scanning meta: %w", err)
	}
	var metaBytes int64
	for _, key := range metaKeys {
		fields, err := o.store.HGetAll(ctx, key)
		if err != nil {
			return Report{}, err
		}
		for id, raw := range fields {
			metaBytes += int64(len(id)) + int64(len(raw))
		}
	}

	var issues []string
	if avgFreq < 1 {
		issues = append(issues, "low average term frequency")
	}
	if high > 2*medium {
		issues = append(issues, "unbalanced term distribution")
	}
	totalStorage := postingBytes + metaBytes
	if totalStorage > 1<<30 {
		issues = append(issues, "high storage usage")
	}

	status := StatusHealthy
	statusValue := 0.0
	switch {
	case len(issues) >= 2:
		status = StatusUnhealthy
		statusValue = 2
	case len(issues) == 1:
		status = StatusDegraded
		statusValue = 1
	}
	observability.IndexHealthStatus.Set(statusValue)

	return Report{
		TotalTerms:           len(postingKeys),
		TotalDocuments:       totalDocs,
		AvgTermFrequency:     avgFreq,
		HighFrequencyTerms:   high,
		MediumFrequencyTerms: medium,
		LowFrequencyTerms:    low,
		PostingStorageBytes:  postingBytes,
		MetaStorageBytes:     metaBytes,
		Status:               status,
		Issues:               issues,
		ComputedAt:           time.Now(),
	}, nil
}

