package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemakit/schemactl/internal/operation"
)

func TestRenderRunSummary(t *testing.T) {
	out := &bytes.Buffer{}

	renderRunSummary(out, []*operation.Response{
		{Project: "shop", Kind: operation.KindValidate, Success: true, FromCache: true, Fingerprint: strings.Repeat("aa", 32), Duration: 12 * time.Millisecond},
		{Project: "billing", Kind: operation.KindGenerate, Success: true, Fingerprint: strings.Repeat("bb", 32), Duration: 340 * time.Millisecond},
		{Project: "shop", Kind: operation.KindDocs, Skipped: true, Success: true},
		nil,
	})

	rendered := out.String()
	assert.Contains(t, rendered, "PROJECT")
	assert.Contains(t, rendered, "OPERATION")
	assert.Contains(t, rendered, "billing")
	assert.Contains(t, rendered, "cache")
	assert.Contains(t, rendered, "engine")
	assert.Contains(t, rendered, "skipped")
	assert.Contains(t, rendered, "aaaaaaaaaaaa")
	assert.Contains(t, rendered, "340ms")
}

func TestSummaryResult(t *testing.T) {
	tests := []struct {
		name string
		resp *operation.Response
		want string
	}{
		{"success", &operation.Response{Success: true}, "ok"},
		{"failure", &operation.Response{ExitCode: 3}, "failed (exit 3)"},
		{"skipped", &operation.Response{Skipped: true, Success: true}, "skipped"},
		{"dry run hit", &operation.Response{DryRun: true, FromCache: true, Success: true}, "up to date"},
		{"dry run miss", &operation.Response{DryRun: true, Success: true}, "would run"},
		{"pipeline error", &operation.Response{State: operation.StateError}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summaryResult(tt.resp))
		})
	}
}

func TestSummarySource(t *testing.T) {
	assert.Equal(t, "cache", summarySource(&operation.Response{Success: true, FromCache: true}))
	assert.Equal(t, "engine", summarySource(&operation.Response{Success: true}))
	assert.Equal(t, "-", summarySource(&operation.Response{Skipped: true, Success: true}))
	assert.Equal(t, "-", summarySource(&operation.Response{DryRun: true, FromCache: true, Success: true}))
}

func TestFirstFailure(t *testing.T) {
	err := firstFailure([]*operation.Response{
		nil,
		{Kind: operation.KindValidate, Success: true},
		{Kind: operation.KindGenerate, ExitCode: 4, ErrorText: "boom"},
	})
	require.Error(t, err)

	var execErr *operation.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, operation.KindGenerate, execErr.Kind)
	assert.Equal(t, 4, execErr.ExitCode)

	assert.NoError(t, firstFailure([]*operation.Response{{Success: true}}))
	assert.NoError(t, firstFailure(nil))
}
