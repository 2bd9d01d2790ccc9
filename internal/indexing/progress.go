package indexing

import "context"

// Progress is a coarse checkpoint: fetch finished, or one embed or upsert
// batch finished.
type Progress struct {
	Stage   Stage `json:"stage"`
	Batch   int   `json:"batch,omitempty"`
	Batches int   `json:"batches,omitempty"`
	Done    int   `json:"done"`
	Total   int   `json:"total"`
}

// Observer receives checkpoints synchronously on the reindex goroutine and
// must not block.
type Observer func(Progress)

func fanOut(observers []Observer) Observer {
	return func(p Progress) {
		for _, obs := range observers {
			if obs != nil {
				obs(p)
			}
		}
	}
}

type triggerKey struct{}

// WithTrigger labels runs started with ctx, e.g. "http", "ws" or "cli".
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "unknown"
}
