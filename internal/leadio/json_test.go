package leadio

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
)

func TestStreamJSONArray(t *testing.T) {
	input := `[{"title":"Roof","location":{"region":"Texas"}},{"title":"Paving","contractID":"B-2"}]`
	leads, err := collect[model.LeadPayload](StreamJSONArray[model.LeadPayload](context.Background(), strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Roof", leads[0].Title)
	assert.Equal(t, "Texas", leads[0].Location.Region)
	assert.Equal(t, "B-2", leads[1].ContractID)
}

func TestStreamJSONArray_EmptyInput(t *testing.T) {
	leads, err := collect[model.LeadPayload](StreamJSONArray[model.LeadPayload](context.Background(), strings.NewReader("")))
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestStreamJSONArray_NotAnArray(t *testing.T) {
	_, err := collect[model.LeadPayload](StreamJSONArray[model.LeadPayload](context.Background(), strings.NewReader(`{"title":"x"}`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestStreamJSONArray_BadElement(t *testing.T) {
	_, err := collect[model.LeadPayload](StreamJSONArray[model.LeadPayload](context.Background(), strings.NewReader(`[{"title":"ok"},{"title":5}]`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode element 1")
}

func TestStreamJSONArray_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 200; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"title":"t"}`)
	}
	b.WriteString("]")

	outCh, errCh := StreamJSONArray[model.LeadPayload](ctx, strings.NewReader(b.String()))
	_, err := collect(outCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamJSONLines(t *testing.T) {
	input := "{\"title\":\"One\"}\n{\"title\":\"Two\"}\n\n{\"title\":\"Three\"}\n"
	leads, err := collect[model.LeadPayload](StreamJSONLines[model.LeadPayload](context.Background(), strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "Three", leads[2].Title)
}

func TestStreamJSONLines_BadLine(t *testing.T) {
	_, err := collect[model.LeadPayload](StreamJSONLines[model.LeadPayload](context.Background(), strings.NewReader("{\"title\":\"One\"}\nnot json\n")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode line 2")
}
