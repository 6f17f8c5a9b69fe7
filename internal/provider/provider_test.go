package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModelSpec_JSON(t *testing.T) {
	spec := testSpec()
	spec.APISecret = "aws-secret"
	spec.BaseURL = "https://example.invalid"
	spec.Temperature = float(0)

	raw, err := json.Marshal(spec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Len(t, fields, 5)
	for _, key := range []string{"name", "provider", "model_id", "code_name", "enabled"} {
		require.Contains(t, fields, key)
	}
	require.NotContains(t, string(raw), "sk-secret-value")
	require.NotContains(t, string(raw), "aws-secret")
}
