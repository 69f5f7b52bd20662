package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolveMappings_FileWinsOverServer(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	views := map[SourceType]map[string]MappingEntry{
		SourceServer: {
			"alpha": {Key: "alpha", Payload: "Y", SourceType: SourceServer},
			"beta":  {Key: "beta", Payload: "B", SourceType: SourceServer},
		},
		SourceFile: {
			"alpha": {Key: "alpha", Payload: "X", SourceType: SourceFile},
		},
	}

	resolved := ResolveMappings(views, logger)

	assert.Len(t, resolved, 2)
	assert.Equal(t, "X", resolved["alpha"].Payload)
	assert.Equal(t, SourceFile, resolved["alpha"].SourceType)
	assert.Equal(t, SourceServer, resolved["beta"].SourceType)

	// Exactly one collision warning, naming the key
	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "multiple sources")
	assert.Equal(t, "alpha", entries[0].ContextMap()["key"])
}

func TestResolveMappings_Deterministic(t *testing.T) {
	views := map[SourceType]map[string]MappingEntry{
		SourceServer: {
			"a": {Key: "a", Payload: "1", SourceType: SourceServer},
			"b": {Key: "b", Payload: "2", SourceType: SourceServer},
		},
		SourceFile: {
			"a": {Key: "a", Payload: "3", SourceType: SourceFile},
			"b": {Key: "b", Payload: "4", SourceType: SourceFile},
		},
	}

	first := ResolveMappings(views, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveMappings(views, nil))
	}
}

func TestResolveAliases_LayeredPrecedence(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	views := map[SourceType]map[string]AliasEntry{
		SourceBuiltin: {
			"k1": {Key: "k1", Value: "builtin", SourceType: SourceBuiltin},
			"k3": {Key: "k3", Value: "b3", SourceType: SourceBuiltin},
		},
		SourceServer: {
			"k1": {Key: "k1", Value: "v2", SourceType: SourceServer},
			"k2": {Key: "k2", Value: "v3", SourceType: SourceServer},
		},
		SourceFile: {
			"k1": {Key: "k1", Value: "v1", SourceType: SourceFile},
		},
	}

	resolved := ResolveAliases(views, logger)

	assert.Equal(t, "v1", resolved["k1"].Value)
	assert.Equal(t, SourceFile, resolved["k1"].SourceType)
	assert.Equal(t, "v3", resolved["k2"].Value)
	assert.Equal(t, "b3", resolved["k3"].Value)

	// k1 collided twice: builtin->server and server->file
	assert.Len(t, logs.All(), 2)
}

func TestResolveMappings_MissingViews(t *testing.T) {
	resolved := ResolveMappings(map[SourceType]map[string]MappingEntry{}, nil)
	assert.Empty(t, resolved)

	resolved = ResolveMappings(map[SourceType]map[string]MappingEntry{
		SourceFile: {"only": {Key: "only", Payload: "p", SourceType: SourceFile}},
	}, nil)
	assert.Len(t, resolved, 1)
}
