package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/schemakit/schemactl/internal/operation"
)

func newBufferedCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	return cmd, out, errOut
}

func TestPrintResponseSuccess(t *testing.T) {
	cmd, out, errOut := newBufferedCommand()

	printResponse(cmd, &operation.Response{
		Kind:        operation.KindValidate,
		Success:     true,
		Output:      "checked 3 schemas",
		Fingerprint: strings.Repeat("ab", 32),
		Duration:    1503 * time.Millisecond,
	})

	assert.Contains(t, out.String(), "checked 3 schemas\n", "engine output should be echoed with a trailing newline")
	assert.Contains(t, out.String(), "validate: ok (abababababab, engine, 1.503s)")
	assert.Empty(t, errOut.String())
}

func TestPrintResponseCachedFailure(t *testing.T) {
	cmd, out, errOut := newBufferedCommand()

	printResponse(cmd, &operation.Response{
		Kind:        operation.KindValidate,
		FromCache:   true,
		ExitCode:    2,
		ErrorText:   "schema user.yaml: missing version",
		Fingerprint: strings.Repeat("cd", 32),
	})

	assert.Contains(t, out.String(), "validate: failed (exit 2)")
	assert.Contains(t, out.String(), "cache")
	assert.Contains(t, errOut.String(), "missing version", "engine stderr belongs on stderr")
}

func TestPrintResponseSkipped(t *testing.T) {
	cmd, out, _ := newBufferedCommand()

	printResponse(cmd, &operation.Response{Kind: operation.KindDocs, Skipped: true, Success: true})

	assert.Equal(t, "docs: skipped by config\n", out.String())
}

func TestPrintResponseDryRun(t *testing.T) {
	tests := []struct {
		name string
		resp *operation.Response
		want string
	}{
		{
			name: "fresh entry",
			resp: &operation.Response{Kind: operation.KindGenerate, DryRun: true, FromCache: true, Success: true, Fingerprint: strings.Repeat("ef", 32)},
			want: "generate: up to date (efefefefefef)\n",
		},
		{
			name: "stale or missing entry",
			resp: &operation.Response{Kind: operation.KindGenerate, DryRun: true, Fingerprint: strings.Repeat("ef", 32)},
			want: "generate: would run (efefefefefef)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, out, _ := newBufferedCommand()

			printResponse(cmd, tt.resp)

			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestPrintResponsePipelineErrorPrintsNothing(t *testing.T) {
	cmd, out, errOut := newBufferedCommand()

	printResponse(cmd, &operation.Response{Kind: operation.KindValidate, State: operation.StateError})
	printResponse(cmd, nil)

	assert.Empty(t, out.String(), "pipeline errors are reported through the returned error")
	assert.Empty(t, errOut.String())
}
