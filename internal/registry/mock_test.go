package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

// mockSearcher implements Searcher for testing.
type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, params clinicaltrials.SearchParams) ([]model.Trial, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Trial), args.Error(1)
}
