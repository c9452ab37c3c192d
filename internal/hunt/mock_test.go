package hunt

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-engine/internal/ingest"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/pkg/anthropic"
)

// mockClient implements anthropic.Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// fakeImporter records the payloads it receives.
type fakeImporter struct {
	mu         sync.Mutex
	payloads   []model.LeadPayload
	sourceFile string
	err        error
}

func (f *fakeImporter) BulkCreate(_ context.Context, payloads []model.LeadPayload, sourceFile string) (*ingest.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payloads...)
	f.sourceFile = sourceFile
	res := &ingest.BulkResult{Imported: []string{}, SkippedDetails: []ingest.SkippedDetail{}}
	for i := range payloads {
		res.Imported = append(res.Imported, payloads[i].Title)
	}
	return res, nil
}

func textResponse(text, stopReason string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Model:      DefaultModel,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: stopReason,
		Usage:      anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 300},
	}
}
