package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/registry"
	"podcastgen/internal/types"
)

// tracker follows one workflow invocation. Registry errors are logged and
// never fail the workflow.
type tracker struct {
	id      string
	reg     *registry.Registry
	log     *logrus.Entry
	started time.Time
	running bool
	stored  bool
}

func (o *Orchestrator) begin(ctx context.Context, wf registry.Workflow) *tracker {
	t := &tracker{reg: o.deps.Registry, started: o.now()}
	if t.reg != nil {
		run, err := t.reg.Begin(ctx, wf)
		if err != nil {
			o.log.WithError(err).WithField("workflow", wf).Warn("failed to record run")
		} else {
			t.id = run.ID
			t.stored = true
		}
	}
	if t.id == "" {
		t.id = o.newID()
	}
	t.log = o.log.WithFields(logrus.Fields{"run_id": t.id, "workflow": wf})
	t.log.Info("workflow started")
	return t
}

func (t *tracker) start(ctx context.Context) {
	if t.running {
		return
	}
	t.running = true
	if !t.stored {
		return
	}
	if _, err := t.reg.Start(ctx, t.id); err != nil {
		t.log.WithError(err).Warn("failed to mark run as running")
	}
}

func (t *tracker) finish(ctx context.Context, art *types.PodcastArtifact, err error) {
	log := t.log.WithField("duration_ms", time.Since(t.started).Milliseconds())
	if err != nil {
		log.WithError(err).WithField("kind", types.KindOf(err)).Error("workflow failed")
	} else {
		log.Info("workflow finished")
	}
	if !t.stored {
		return
	}
	// the outcome is recorded even if the caller's context is already done
	if _, rerr := t.reg.Finish(context.WithoutCancel(ctx), t.id, art, err); rerr != nil {
		t.log.WithError(rerr).Warn("failed to record run outcome")
	}
}
