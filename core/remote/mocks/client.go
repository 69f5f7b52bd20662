package mocks

import (
	"context"
	"encoding/json"
	"net/url"

	"mapping-registry/core/remote"

	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of remote.Client
type Client struct {
	mock.Mock
}

func (m *Client) ConditionalRead(ctx context.Context, resourceType, id string, pre *remote.Precondition) (*remote.ReadResult, error) {
	args := m.Called(ctx, resourceType, id, pre)
	if res, ok := args.Get(0).(*remote.ReadResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) Search(ctx context.Context, resourceType string, params url.Values) ([]json.RawMessage, error) {
	args := m.Called(ctx, resourceType, params)
	if records, ok := args.Get(0).([]json.RawMessage); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) BaseIdentifier() string {
	args := m.Called()
	return args.String(0)
}
