package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"mediagrab/internal/extractor"
	"mediagrab/internal/models"
)

// MockExtractor is a mock implementation of the Extractor interface
type MockExtractor struct {
	mock.Mock
}

// Describe mocks the Describe method
func (m *MockExtractor) Describe(ctx context.Context, url string) (*models.Metadata, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Metadata), args.Error(1)
}

// Fetch mocks the Fetch method. Progress events queued with Report are
// delivered to onProgress before the mocked return values are produced.
func (m *MockExtractor) Fetch(ctx context.Context, req extractor.FetchRequest, onProgress extractor.ProgressFunc) (*models.Artifact, error) {
	args := m.Called(ctx, req, onProgress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Artifact), args.Error(1)
}

// Report returns a Run function that feeds events to the progress callback.
func Report(events ...models.ProgressEvent) func(mock.Arguments) {
	return func(args mock.Arguments) {
		onProgress := args.Get(2).(extractor.ProgressFunc)
		for _, ev := range events {
			onProgress(ev)
		}
	}
}
