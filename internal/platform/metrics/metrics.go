package metrics

import (
	"sync/atomic"
	"time"
)

// Collector counts HTTP traffic and payroll activity. A nil *Collector
// ignores every call.
type Collector struct {
	totalRequests   atomic.Uint64
	errorRequests   atomic.Uint64
	rateLimited     atomic.Uint64
	totalDurationMs atomic.Uint64

	calculations     atomic.Uint64
	calcFailures     atomic.Uint64
	bulkRuns         atomic.Uint64
	finalizedRecords atomic.Uint64
	revisions        atomic.Uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.totalRequests.Add(1)
	if status >= 500 {
		c.errorRequests.Add(1)
	}
	if status == 429 {
		c.rateLimited.Add(1)
	}
	c.totalDurationMs.Add(uint64(duration.Milliseconds()))
}

func (c *Collector) PayrollCalculated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.calculations.Add(uint64(n))
}

func (c *Collector) PayrollFailed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.calcFailures.Add(uint64(n))
}

func (c *Collector) BulkRun() {
	if c == nil {
		return
	}
	c.bulkRuns.Add(1)
}

func (c *Collector) RecordsFinalized(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.finalizedRecords.Add(uint64(n))
}

func (c *Collector) RevisionImplemented() {
	if c == nil {
		return
	}
	c.revisions.Add(1)
}

func (c *Collector) Snapshot() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	total := c.totalRequests.Load()
	totalMs := c.totalDurationMs.Load()
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":            total,
		"errorsTotal":              c.errorRequests.Load(),
		"rateLimitedTotal":         c.rateLimited.Load(),
		"avgDurationMs":            avg,
		"totalDurationMs":          totalMs,
		"payrollCalculationsTotal": c.calculations.Load(),
		"payrollFailuresTotal":     c.calcFailures.Load(),
		"bulkRunsTotal":            c.bulkRuns.Load(),
		"recordsFinalizedTotal":    c.finalizedRecords.Load(),
		"revisionsImplemented":     c.revisions.Load(),
	}
}
