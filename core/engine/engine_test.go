package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"mapping-registry/core/remote"
	"mapping-registry/core/remote/mocks"
	"mapping-registry/core/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type builtinFunc func(ctx context.Context) (map[string]AliasEntry, error)

func (f builtinFunc) BuiltinAliases(ctx context.Context) (map[string]AliasEntry, error) {
	return f(ctx)
}

func testConfig(dir string) Config {
	return Config{
		Dir:              dir,
		MappingExtension: ".fume",
		AliasResourceID:  "alias-doc",
	}
}

func emptyAliasRead() *remote.ReadResult {
	return &remote.ReadResult{Status: remote.StatusOK, Body: []byte(`{"id":"alias-doc","values":{}}`)}
}

func TestEngineNew_RejectsReservedExtension(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MappingExtension = ".json"

	_, err := New(cfg, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg.MappingExtension = "fume"
	_, err = New(cfg, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_FileBeatsServerOnCollision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.fume"), []byte("X"), 0o644))

	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{mappingRecord("alpha", "Y")}, nil)
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(emptyAliasRead(), nil)

	eng, err := New(testConfig(dir), client, nil, zap.NewNop())
	require.NoError(t, err)
	eng.ForceResync(context.Background())

	entry, ok := eng.Mapping("alpha")
	require.True(t, ok)
	assert.Equal(t, "X", entry.Payload)
	assert.Equal(t, SourceFile, entry.SourceType)
}

func TestEngine_RefreshFallsBackToServerWhenFileVanishes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha.fume")
	require.NoError(t, os.WriteFile(path, []byte("X"), 0o644))

	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{mappingRecord("alpha", "Y")}, nil)
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(emptyAliasRead(), nil)
	client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha", mock.Anything).
		Return(&remote.ReadResult{Status: remote.StatusOK, Body: mappingRecord("alpha", "Y")}, nil)

	eng, err := New(testConfig(dir), client, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	eng.ForceResync(ctx)

	require.NoError(t, os.Remove(path))
	require.NoError(t, eng.RefreshMapping(ctx, "alpha"))

	entry, ok := eng.Mapping("alpha")
	require.True(t, ok)
	assert.Equal(t, "Y", entry.Payload)
	assert.Equal(t, SourceServer, entry.SourceType)
}

func TestEngine_ResyncObservesServerSideDeletions(t *testing.T) {
	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(emptyAliasRead(), nil)
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{mappingRecord("alpha", "Y"), mappingRecord("beta", "Z")}, nil).Once()
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{mappingRecord("alpha", "Y")}, nil).Once()

	eng, err := New(testConfig(""), client, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	eng.ForceResync(ctx)
	_, ok := eng.Mapping("beta")
	require.True(t, ok)

	summary := eng.ForceResync(ctx)
	assert.Equal(t, 1, summary.MappingDeletes)
	_, ok = eng.Mapping("beta")
	assert.False(t, ok)
}

func TestEngine_AliasViewsMergeWithPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, AliasFileName), []byte(`{"k1":"v1"}`), 0o644))

	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{}, nil)
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(&remote.ReadResult{
			Status: remote.StatusOK,
			Body:   []byte(`{"id":"alias-doc","values":{"k1":"v2","k2":"v3"}}`),
		}, nil)

	builtins := builtinFunc(func(context.Context) (map[string]AliasEntry, error) {
		return map[string]AliasEntry{
			"k2": {Key: "k2", Value: "b2", SourceType: SourceBuiltin},
			"k3": {Key: "k3", Value: "b3", SourceType: SourceBuiltin},
		}, nil
	})

	eng, err := New(testConfig(dir), client, builtins, zap.NewNop())
	require.NoError(t, err)
	eng.ForceResync(context.Background())

	assert.Equal(t, map[string]string{
		"k1": "v1",
		"k2": "v3",
		"k3": "b3",
	}, eng.Aliases())
}

func TestEngine_ResyncKeepsServerEntriesWhenSearchFails(t *testing.T) {
	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(emptyAliasRead(), nil)
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{mappingRecord("alpha", "Y")}, nil).Once()
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return(nil, assert.AnError)

	eng, err := New(testConfig(""), client, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	eng.ForceResync(ctx)
	summary := eng.ForceResync(ctx)

	assert.True(t, summary.ServerError)
	assert.Zero(t, summary.MappingDeletes)
	_, ok := eng.Mapping("alpha")
	assert.True(t, ok)
}

func TestEngine_RefreshMappingRejectsInvalidKey(t *testing.T) {
	eng, err := New(testConfig(""), nil, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, eng.RefreshMapping(context.Background(), "no spaces allowed"))
}

func TestEngine_StatusReflectsConfiguredSources(t *testing.T) {
	dir := t.TempDir()
	client := new(mocks.Client)

	eng, err := New(testConfig(dir), client, nil, zap.NewNop())
	require.NoError(t, err)

	status := eng.Status()
	assert.True(t, status.FileSource)
	assert.True(t, status.ServerSource)
	assert.False(t, status.PackageSource)
	assert.Zero(t, status.Mappings)
}

func TestEngine_BuiltinFailureKeepsPreviousBuiltinAliases(t *testing.T) {
	client := new(mocks.Client)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{}, nil)
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(emptyAliasRead(), nil)

	calls := 0
	builtins := builtinFunc(func(context.Context) (map[string]AliasEntry, error) {
		calls++
		if calls == 1 {
			return map[string]AliasEntry{"k1": {Key: "k1", Value: "b1", SourceType: SourceBuiltin}}, nil
		}
		return nil, assert.AnError
	})

	eng, err := New(testConfig(""), client, builtins, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	eng.ForceResync(ctx)
	require.Equal(t, map[string]string{"k1": "b1"}, eng.Aliases())

	summary := eng.ForceResync(ctx)
	assert.True(t, summary.BuiltinError)
	assert.Equal(t, map[string]string{"k1": "b1"}, eng.Aliases())
}
