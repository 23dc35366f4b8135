package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-email-responder/internal/core"
)

func TestPrintReport(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	r := core.NewBatchReport("run-1", start)
	r.Fetched = 3
	r.Add(core.WorkflowResult{MessageID: "m1", Outcome: core.OutcomeSent})
	r.Add(core.WorkflowResult{MessageID: "m2", Outcome: core.OutcomeSkipped, SkipReason: core.SkipSuppressed})
	r.Add(core.WorkflowResult{
		MessageID: "m3", Outcome: core.OutcomeFailed,
		FailedStage: core.StageSend, Kind: core.KindSendFailed, Reason: "421 service not available",
	})
	r.FinishedAt = start.Add(1500 * time.Millisecond)

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "=== Run run-1 ===")
	assert.Contains(t, out, "Sent:    1")
	assert.Contains(t, out, "suppressed")
	assert.Contains(t, out, "m3 failed at send (send_failed): 421 service not available")
	assert.Contains(t, out, "Duration: 1.5s")
}

func TestSortedKeys(t *testing.T) {
	m := map[core.ErrorKind]int{core.KindSendFailed: 1, core.KindGenerationFailed: 2}
	assert.Equal(t, []core.ErrorKind{core.KindGenerationFailed, core.KindSendFailed}, sortedKeys(m))
}
