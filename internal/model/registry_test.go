package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/merrors"
	"github.com/mooassistant/moo/internal/model"
)

type stubClient struct {
	model.Client
	id string
}

func (s stubClient) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSchema, opts model.ChatOptions) (model.ChatResult, error) {
	return model.ChatResult{Text: "from " + s.id}, nil
}

func TestRegistryPicksFirstCapableCredentialedProvider(t *testing.T) {
	registry := model.NewRegistry([]model.ProviderEntry{
		{ID: "no-creds", Capabilities: []string{model.CapChat}, Credentialed: false, Client: stubClient{id: "no-creds"}},
		{ID: "embed-only", Capabilities: []string{model.CapEmbed}, Credentialed: true, Client: stubClient{id: "embed-only"}},
		{ID: "chatty", Capabilities: []string{model.CapChat}, Credentialed: true, Client: stubClient{id: "chatty"}},
		{ID: "later", Capabilities: []string{model.CapChat}, Credentialed: true, Client: stubClient{id: "later"}},
	})

	result, err := registry.Chat(context.Background(), nil, nil, model.ChatOptions{})
	require.NoError(t, err)
	require.Equal(t, "from chatty", result.Text)
}

func TestRegistryNoProviderIsProviderError(t *testing.T) {
	registry := model.NewRegistry(nil)

	_, err := registry.Chat(context.Background(), nil, nil, model.ChatOptions{})
	require.Error(t, err)
	var perr *merrors.ProviderError
	require.True(t, errors.As(err, &perr))
}

func TestRegistryByID(t *testing.T) {
	registry := model.NewRegistry([]model.ProviderEntry{
		{ID: "a", Credentialed: true, Client: stubClient{id: "a"}},
		{ID: "b", Credentialed: false, Client: stubClient{id: "b"}},
	})

	_, ok := registry.ByID("a")
	require.True(t, ok)
	_, ok = registry.ByID("b")
	require.False(t, ok, "uncredentialed entries are not selectable")
	_, ok = registry.ByID("missing")
	require.False(t, ok)
}
