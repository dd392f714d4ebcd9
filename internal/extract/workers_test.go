package extract

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/dtnitsch/linkmeta/pkg/pipeline"
)

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, req pipeline.Request) *pipeline.Outcome {
	r.calls.Add(1)
	if req.BlockID == "bad" {
		return &pipeline.Outcome{Status: pipeline.StatusFailed, Message: "boom"}
	}
	return &pipeline.Outcome{Status: pipeline.StatusSucceeded, Message: req.BlockID}
}

func TestRunAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name    string
		blocks  []string
		workers int
		wantErr bool
	}{
		{"all succeed", []string{"a", "b", "c", "d", "e"}, 2, false},
		{"more workers than jobs", []string{"a", "b"}, 8, false},
		{"default workers", []string{"a", "b", "c"}, 0, false},
		{"one fails", []string{"a", "bad", "c"}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &countingRunner{}
			reqs := make([]pipeline.Request, len(tt.blocks))
			for i, id := range tt.blocks {
				reqs[i] = pipeline.Request{BlockID: id}
			}

			results, err := runAll(context.Background(), logger, r, reqs, tt.workers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runAll() error = %v, wantErr %v", err, tt.wantErr)
			}
			if int(r.calls.Load()) != len(reqs) {
				t.Errorf("runs = %d, want %d", r.calls.Load(), len(reqs))
			}
			for i, res := range results {
				if res.Request.BlockID != tt.blocks[i] {
					t.Errorf("result %d is for %q, want %q", i, res.Request.BlockID, tt.blocks[i])
				}
			}
		})
	}
}
