package packages

import (
	"bytes"
	"context"
	"io"
	"testing"

	"mapping-registry/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func objectStream(keys ...string) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		ch <- minio.ObjectInfo{Key: key}
	}
	close(ch)
	return ch
}

func object(content string) io.ReadCloser {
	return io.NopCloser(bytes.NewBufferString(content))
}

func newIndexedExplorer(t *testing.T) (Explorer, *mocks.Client) {
	t.Helper()
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "packages").Return(true, nil)
	client.On("ListObjects", mock.Anything, "packages", mock.Anything).
		Return(objectStream(
			"base/1.0.0/index.json",
			"base/1.0.0/units.json",
			"extras/2.1.0/index.json",
			"extras/2.1.0/readme.md",
		))
	client.On("GetObject", mock.Anything, "packages", "base/1.0.0/index.json", mock.Anything).
		Return(object(`{
			"name": "base", "version": "1.0.0",
			"entries": [
				{"filename": "units.json", "key": "units", "type": "alias"},
				{"filename": "scale.fume", "key": "scale", "type": "mapping"}
			]
		}`), nil)
	client.On("GetObject", mock.Anything, "packages", "extras/2.1.0/index.json", mock.Anything).
		Return(object(`{
			"name": "extras", "version": "2.1.0",
			"entries": [{"filename": "colors.json", "key": "colors", "type": "alias"}]
		}`), nil)
	return NewExplorer(client, "packages", zap.NewNop()), client
}

func TestExplorer_LookupFlattensAllIndices(t *testing.T) {
	explorer, _ := newIndexedExplorer(t)

	records, err := explorer.Lookup(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	aliases, err := explorer.Lookup(context.Background(), Filter{Type: TypeAlias})
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.Equal(t, "base", aliases[0].Package)
	assert.Equal(t, "extras", aliases[1].Package)
}

func TestExplorer_Resolve(t *testing.T) {
	explorer, _ := newIndexedExplorer(t)
	ctx := context.Background()

	rec, err := explorer.Resolve(ctx, Filter{Key: "scale"})
	require.NoError(t, err)
	assert.Equal(t, "pkg://base@1.0.0/scale.fume", rec.Locator())

	_, err = explorer.Resolve(ctx, Filter{Key: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = explorer.Resolve(ctx, Filter{Type: TypeAlias})
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestExplorer_IndicesLoadOnce(t *testing.T) {
	explorer, client := newIndexedExplorer(t)
	ctx := context.Background()

	_, err := explorer.Lookup(ctx, Filter{})
	require.NoError(t, err)
	_, err = explorer.Lookup(ctx, Filter{})
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "ListObjects", 1)
}

func TestExplorer_BrokenIndexIsSkipped(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "packages").Return(true, nil)
	client.On("ListObjects", mock.Anything, "packages", mock.Anything).
		Return(objectStream("broken/0.1.0/index.json", "base/1.0.0/index.json"))
	client.On("GetObject", mock.Anything, "packages", "broken/0.1.0/index.json", mock.Anything).
		Return(object(`{"not an index`), nil)
	client.On("GetObject", mock.Anything, "packages", "base/1.0.0/index.json", mock.Anything).
		Return(object(`{"name":"base","version":"1.0.0","entries":[{"filename":"u.json","key":"u","type":"alias"}]}`), nil)

	explorer := NewExplorer(client, "packages", zap.NewNop())
	records, err := explorer.Lookup(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "base", records[0].Package)
}

func TestExplorer_MissingBucketFailsLoad(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "packages").Return(false, nil)

	explorer := NewExplorer(client, "packages", zap.NewNop())
	_, err := explorer.Lookup(context.Background(), Filter{})
	assert.Error(t, err)
}

func TestExplorer_Fetch(t *testing.T) {
	explorer, client := newIndexedExplorer(t)
	client.On("GetObject", mock.Anything, "packages", "base/1.0.0/units.json", mock.Anything).
		Return(object(`{"km":"kilometers"}`), nil)

	data, err := explorer.Fetch(context.Background(), Record{
		Package: "base", Version: "1.0.0", Filename: "units.json",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"km":"kilometers"}`, string(data))
}
