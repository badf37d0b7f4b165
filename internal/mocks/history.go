package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/history"
)

type HistorySourceMock struct {
	mock.Mock
}

func (m *HistorySourceMock) Fetch(ctx context.Context, limit, offset int) (history.Page, error) {
	args := m.Called(ctx, limit, offset)
	var page history.Page
	if val := args.Get(0); val != nil {
		page = val.(history.Page)
	}
	return page, args.Error(1)
}
