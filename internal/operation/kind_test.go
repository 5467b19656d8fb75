package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "validate", want: KindValidate},
		{input: "generate", want: KindGenerate},
		{input: "docs", want: KindDocs},
		{input: "Validate", wantErr: true},
		{input: "build", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown operation")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "validate", KindValidate.String())
	assert.Equal(t, "generate", KindGenerate.String())
	assert.Equal(t, "docs", KindDocs.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestAllKindsOrder(t *testing.T) {
	assert.Equal(t, []Kind{KindValidate, KindGenerate, KindDocs}, AllKinds())
}

func TestProducesOutputs(t *testing.T) {
	assert.False(t, KindValidate.producesOutputs())
	assert.True(t, KindGenerate.producesOutputs())
	assert.True(t, KindDocs.producesOutputs())
}
