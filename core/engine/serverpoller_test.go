package engine

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"mapping-registry/core/remote"
	"mapping-registry/core/remote/mocks"
	"mapping-registry/core/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServerPoller(t *testing.T, pinnedID string) (*serverPoller, *mocks.Client, *Store, *[]map[string]AliasEntry) {
	t.Helper()
	client := new(mocks.Client)
	store := NewStore(zap.NewNop())
	differ := NewDiffer(store, nil, zap.NewNop())

	var aliasUpdates []map[string]AliasEntry
	poller := newServerPoller(client, store, differ, pinnedID, func(view map[string]AliasEntry) {
		aliasUpdates = append(aliasUpdates, view)
	}, zap.NewNop())
	return poller, client, store, &aliasUpdates
}

func mappingRecord(id, expression string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"id": id, "expression": expression})
	return raw
}

func TestServerPoller_SearchUpsertsChangedMappings(t *testing.T) {
	poller, client, store, _ := newTestServerPoller(t, "alias-doc")

	client.On("BaseIdentifier").Return("https://server.example")
	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return([]json.RawMessage{
			mappingRecord("alpha", "Y"),
			json.RawMessage(`{"name":"no id"}`),
			mappingRecord("beta", "Z"),
		}, nil)

	poller.incrementalSearch(context.Background())

	alpha, ok := store.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "Y", alpha.Payload)
	assert.Equal(t, SourceServer, alpha.SourceType)
	assert.Equal(t, "https://server.example/mappings/alpha", alpha.SourceLocator)

	_, ok = store.Get("beta")
	assert.True(t, ok)

	mappings, _ := store.Counts()
	assert.Equal(t, 2, mappings)
}

func TestServerPoller_SearchSendsChangedSinceAfterFirstPoll(t *testing.T) {
	poller, client, _, _ := newTestServerPoller(t, "alias-doc")

	client.On("Search", mock.Anything, translate.ResourceMappings, mock.MatchedBy(func(params url.Values) bool {
		return params.Get("changed_since") == ""
	})).Return([]json.RawMessage{}, nil).Once()

	ctx := context.Background()
	poller.incrementalSearch(ctx)

	client.On("Search", mock.Anything, translate.ResourceMappings, mock.MatchedBy(func(params url.Values) bool {
		return params.Get("changed_since") != ""
	})).Return([]json.RawMessage{}, nil).Once()

	poller.incrementalSearch(ctx)
	client.AssertExpectations(t)
}

func TestServerPoller_SearchFailureKeepsCursor(t *testing.T) {
	poller, client, _, _ := newTestServerPoller(t, "alias-doc")

	client.On("Search", mock.Anything, translate.ResourceMappings, mock.Anything).
		Return(nil, assert.AnError)

	poller.incrementalSearch(context.Background())
	assert.True(t, poller.lastSearch.IsZero())
}

func TestServerPoller_AliasRefreshAppliesDocument(t *testing.T) {
	poller, client, _, aliasUpdates := newTestServerPoller(t, "alias-doc")

	body := []byte(`{"id":"alias-doc","values":{"k1":"v2","k2":"v3"}}`)
	client.On("BaseIdentifier").Return("https://server.example")
	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(&remote.ReadResult{
			Status:   remote.StatusOK,
			Body:     body,
			Revision: &remote.Revision{VersionTag: `"v7"`},
		}, nil)

	poller.refreshAliases(context.Background())

	require.Len(t, *aliasUpdates, 1)
	view := (*aliasUpdates)[0]
	assert.Equal(t, "v2", view["k1"].Value)
	assert.Equal(t, "v3", view["k2"].Value)
	assert.Equal(t, SourceServer, view["k1"].SourceType)

	pre := poller.aliasPrecondition()
	require.NotNil(t, pre)
	assert.Equal(t, `"v7"`, pre.VersionTag)
}

func TestServerPoller_AliasNotModifiedLeavesViewAlone(t *testing.T) {
	poller, client, _, aliasUpdates := newTestServerPoller(t, "alias-doc")

	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "alias-doc", mock.Anything).
		Return(&remote.ReadResult{Status: remote.StatusNotModified}, nil)

	poller.refreshAliases(context.Background())
	assert.Empty(t, *aliasUpdates)
}

func TestServerPoller_AliasGoneClearsViewAndDiscoveredIdentity(t *testing.T) {
	poller, client, _, aliasUpdates := newTestServerPoller(t, "")
	poller.discoveredID = "found-earlier"
	poller.aliasRevision = &remote.Revision{VersionTag: `"v1"`}

	client.On("ConditionalRead", mock.Anything, translate.ResourceAliases, "found-earlier", mock.Anything).
		Return(&remote.ReadResult{Status: remote.StatusGone}, nil)

	poller.refreshAliases(context.Background())

	require.Len(t, *aliasUpdates, 1)
	assert.Empty(t, (*aliasUpdates)[0])
	assert.Empty(t, poller.discoveredID)
	assert.Nil(t, poller.aliasRevision)
}

func TestServerPoller_AliasDiscovery(t *testing.T) {
	t.Run("single candidate is adopted", func(t *testing.T) {
		poller, client, _, _ := newTestServerPoller(t, "")

		client.On("Search", mock.Anything, translate.ResourceAliases, mock.Anything).
			Return([]json.RawMessage{[]byte(`{"id":"the-doc","values":{}}`)}, nil)

		id, ok := poller.aliasIdentity(context.Background())
		require.True(t, ok)
		assert.Equal(t, "the-doc", id)
		assert.Equal(t, "the-doc", poller.discoveredID)
	})

	t.Run("no candidate clears the server view", func(t *testing.T) {
		poller, client, _, aliasUpdates := newTestServerPoller(t, "")

		client.On("Search", mock.Anything, translate.ResourceAliases, mock.Anything).
			Return([]json.RawMessage{}, nil)

		_, ok := poller.aliasIdentity(context.Background())
		assert.False(t, ok)
		require.Len(t, *aliasUpdates, 1)
		assert.Empty(t, (*aliasUpdates)[0])
	})

	t.Run("multiple candidates are rejected", func(t *testing.T) {
		poller, client, _, aliasUpdates := newTestServerPoller(t, "")

		client.On("Search", mock.Anything, translate.ResourceAliases, mock.Anything).
			Return([]json.RawMessage{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)}, nil)

		_, ok := poller.aliasIdentity(context.Background())
		assert.False(t, ok)
		assert.Empty(t, poller.discoveredID)
		assert.Empty(t, *aliasUpdates)
	})

	t.Run("pinned identity skips discovery", func(t *testing.T) {
		poller, client, _, _ := newTestServerPoller(t, "pinned")

		id, ok := poller.aliasIdentity(context.Background())
		require.True(t, ok)
		assert.Equal(t, "pinned", id)
		client.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServerPoller_RefreshOne(t *testing.T) {
	t.Run("ok result updates the entry", func(t *testing.T) {
		poller, client, store, _ := newTestServerPoller(t, "alias-doc")

		client.On("BaseIdentifier").Return("https://server.example")
		client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha", mock.Anything).
			Return(&remote.ReadResult{
				Status:   remote.StatusOK,
				Body:     mappingRecord("alpha", "Y"),
				Revision: &remote.Revision{VersionTag: `"v3"`},
			}, nil)

		require.NoError(t, poller.refreshOne(context.Background(), "alpha"))

		entry, ok := store.Get("alpha")
		require.True(t, ok)
		assert.Equal(t, "Y", entry.Payload)
		require.NotNil(t, entry.Revision)
		assert.Equal(t, `"v3"`, entry.Revision.VersionTag)
	})

	t.Run("not found deletes a server-owned entry", func(t *testing.T) {
		poller, client, store, _ := newTestServerPoller(t, "alias-doc")
		store.ApplyUpserts([]MappingEntry{{Key: "alpha", Payload: "Y", SourceType: SourceServer}})

		client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha", mock.Anything).
			Return(&remote.ReadResult{Status: remote.StatusNotFound}, nil)

		require.NoError(t, poller.refreshOne(context.Background(), "alpha"))

		_, ok := store.Get("alpha")
		assert.False(t, ok)
	})

	t.Run("sends the stored revision as precondition", func(t *testing.T) {
		poller, client, store, _ := newTestServerPoller(t, "alias-doc")
		store.ApplyUpserts([]MappingEntry{{
			Key: "alpha", Payload: "Y", SourceType: SourceServer,
			Revision: &SourceRevision{VersionTag: `"v3"`},
		}})

		client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha",
			mock.MatchedBy(func(pre *remote.Precondition) bool {
				return pre != nil && pre.VersionTag == `"v3"`
			})).Return(&remote.ReadResult{Status: remote.StatusNotModified}, nil)

		require.NoError(t, poller.refreshOne(context.Background(), "alpha"))
		client.AssertExpectations(t)
	})

	t.Run("transport failure is surfaced", func(t *testing.T) {
		poller, client, _, _ := newTestServerPoller(t, "alias-doc")

		client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha", mock.Anything).
			Return(nil, assert.AnError)

		assert.Error(t, poller.refreshOne(context.Background(), "alpha"))
	})
}

func TestServerPoller_FetchOne(t *testing.T) {
	poller, client, _, _ := newTestServerPoller(t, "alias-doc")

	client.On("BaseIdentifier").Return("https://server.example")
	client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "alpha", (*remote.Precondition)(nil)).
		Return(&remote.ReadResult{Status: remote.StatusOK, Body: mappingRecord("alpha", "Y")}, nil).Once()

	entry, err := poller.fetchOne(context.Background(), "alpha")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Y", entry.Payload)

	client.On("ConditionalRead", mock.Anything, translate.ResourceMappings, "gone", (*remote.Precondition)(nil)).
		Return(&remote.ReadResult{Status: remote.StatusNotFound}, nil).Once()

	entry, err = poller.fetchOne(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
