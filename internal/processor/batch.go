package processor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/types"
)

// Batch runs every item through the text or conversation workflow with at
// most workers rows in flight. Outcomes keep the order of items. Each row is
// an independent request, so a failing row never stops the others.
func (p *Processor) Batch(ctx context.Context, items []types.BatchItem, workers int) []types.BatchOutcome {
	if workers < 1 {
		workers = 1
	}
	out := make([]types.BatchOutcome, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = p.batchItem(ctx, items[i])
			}
		}()
	}

	for i := range items {
		if ctx.Err() != nil {
			out[i] = cancelled(items[i], ctx.Err())
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

func (p *Processor) batchItem(ctx context.Context, item types.BatchItem) types.BatchOutcome {
	log := p.log.WithFields(logrus.Fields{"row": item.Row, "id": item.ID})
	var (
		res      Result
		workflow string
	)
	if item.IsConversation() {
		workflow = "conversation"
		res = p.Conversation(ctx, item.Conversation, types.VoiceProfile{ID: item.Voice1}, types.VoiceProfile{ID: item.Voice2})
	} else {
		workflow = "text"
		res = p.Text(ctx, item.Transcript, types.VoiceProfile{ID: item.Voice})
	}
	log.WithFields(logrus.Fields{"workflow": workflow, "success": res.Success, "duration_ms": res.DurationMs}).Info("batch row processed")
	return types.BatchOutcome{
		Item:       item,
		Workflow:   workflow,
		Success:    res.Success,
		Audio:      res.Audio,
		Message:    res.Message,
		Kind:       res.Kind,
		RunID:      res.RunID,
		DurationMs: res.DurationMs,
	}
}

func cancelled(item types.BatchItem, err error) types.BatchOutcome {
	workflow := "text"
	if item.IsConversation() {
		workflow = "conversation"
	}
	return types.BatchOutcome{
		Item:     item,
		Workflow: workflow,
		Kind:     types.KindInternal,
		Message:  "batch cancelled: " + err.Error(),
	}
}
