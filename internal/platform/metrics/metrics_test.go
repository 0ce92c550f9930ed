package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordRequests(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(503, 30*time.Millisecond)
	c.Record(429, 2*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, uint64(3), snap["requestsTotal"])
	assert.Equal(t, uint64(1), snap["errorsTotal"])
	assert.Equal(t, uint64(1), snap["rateLimitedTotal"])
	assert.Equal(t, uint64(42), snap["totalDurationMs"])
	assert.InDelta(t, 14.0, snap["avgDurationMs"], 0.001)
}

func TestPayrollCounters(t *testing.T) {
	c := New()
	c.PayrollCalculated(4)
	c.PayrollCalculated(-1)
	c.PayrollFailed(1)
	c.BulkRun()
	c.RecordsFinalized(4)
	c.RevisionImplemented()

	snap := c.Snapshot()
	assert.Equal(t, uint64(4), snap["payrollCalculationsTotal"])
	assert.Equal(t, uint64(1), snap["payrollFailuresTotal"])
	assert.Equal(t, uint64(1), snap["bulkRunsTotal"])
	assert.Equal(t, uint64(4), snap["recordsFinalizedTotal"])
	assert.Equal(t, uint64(1), snap["revisionsImplemented"])
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Record(200, time.Millisecond)
		c.PayrollCalculated(1)
		c.BulkRun()
	})
	assert.Empty(t, c.Snapshot())
}
