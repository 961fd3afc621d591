package openai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toybox-labs/toymem-go/pkg/embedder/openai"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := openai.NewClient(&openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, client.Dimensions())
}

func TestNewClientResolvesModelName(t *testing.T) {
	client, err := openai.NewClient(&openai.Config{
		APIKey:     "sk-test",
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
	})
	require.NoError(t, err)
	assert.Equal(t, 1536, client.Dimensions())
}

func TestNewClientRejectsUnknownModel(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{
		APIKey: "sk-test",
		Model:  "not-a-real-model",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-real-model")
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{})
	assert.Error(t, err)
}
