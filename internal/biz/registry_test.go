package biz

import (
	"io"
	"testing"

	"ModelLane/internal/llm"
	"ModelLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ChainsPreserveOrder(t *testing.T) {
	bc := testBootstrap(0, map[string][]string{
		"strategic": {"b", "a"},
		"template":  {"a"},
	}, testProviderConf("a", 8192), testProviderConf("b", 8192))

	reg, err := NewRegistry(bc, []llm.Provider{succeeding("a"), succeeding("b")}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	chain, err := reg.Candidates(model.TaskClass("strategic"))
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "b", chain[0].Provider.ID())
	assert.Equal(t, "a", chain[1].Provider.ID())
}

func TestRegistry_SharedProviderSharesBreaker(t *testing.T) {
	bc := testBootstrap(0, map[string][]string{
		"strategic": {"a"},
		"template":  {"a"},
	}, testProviderConf("a", 8192))

	reg, err := NewRegistry(bc, []llm.Provider{succeeding("a")}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	s, err := reg.Candidates(model.TaskClass("strategic"))
	require.NoError(t, err)
	tmpl, err := reg.Candidates(model.TaskClass("template"))
	require.NoError(t, err)

	assert.Same(t, s[0].Breaker, tmpl[0].Breaker,
		"a provider appearing in two chains must carry one breaker")
}

func TestRegistry_UnknownTaskClass(t *testing.T) {
	bc := testBootstrap(0, map[string][]string{"strategic": {"a"}}, testProviderConf("a", 8192))
	reg, err := NewRegistry(bc, []llm.Provider{succeeding("a")}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	_, err = reg.Candidates(model.TaskClass("reporting"))
	assert.ErrorIs(t, err, ErrUnknownTaskClass)
}

func TestRegistry_MissingAdapter(t *testing.T) {
	bc := testBootstrap(0, map[string][]string{"strategic": {"a"}}, testProviderConf("a", 8192))

	_, err := NewRegistry(bc, nil, log.NewStdLogger(io.Discard))
	assert.Error(t, err)
}

func TestRegistry_StatusInConfigOrder(t *testing.T) {
	bc := testBootstrap(0, map[string][]string{"strategic": {"b"}},
		testProviderConf("a", 8192), testProviderConf("b", 8192))
	reg, err := NewRegistry(bc, []llm.Provider{succeeding("a"), succeeding("b")}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	statuses := reg.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].ProviderID)
	assert.Equal(t, "b", statuses[1].ProviderID)
	assert.Equal(t, "fake", statuses[0].Vendor)
}
