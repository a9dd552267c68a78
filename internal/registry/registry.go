// Package registry records pipeline runs and the artifacts they produce in a
// kv.Store, so run outcomes survive restarts when the store is on disk.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"podcastgen/internal/kv"
	"podcastgen/internal/types"
)

var (
	ErrRunNotFound      = errors.New("registry: run not found")
	ErrArtifactNotFound = errors.New("registry: artifact not found")
)

// Workflow names a pipeline entry point.
type Workflow string

const (
	WorkflowTranscribe   Workflow = "transcribe"
	WorkflowText         Workflow = "text_to_audio"
	WorkflowConversation Workflow = "conversation_to_audio"
	WorkflowAudio        Workflow = "audio_to_audio"
)

// RunState moves forward only: pending -> running -> succeeded | failed.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

type Run struct {
	ID         string          `json:"id" msgpack:"id"`
	Workflow   Workflow        `json:"workflow" msgpack:"workflow"`
	State      RunState        `json:"state" msgpack:"state"`
	ErrorKind  types.ErrorKind `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	Message    string          `json:"message,omitempty" msgpack:"message,omitempty"`
	ArtifactID string          `json:"artifact_id,omitempty" msgpack:"artifact_id,omitempty"`
	StartedAt  time.Time       `json:"started_at" msgpack:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

// Duration is zero until the run finishes.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Registry is safe for concurrent use.
type Registry struct {
	store kv.Store
	now   func() time.Time
	newID func() string

	// mu serializes read-modify-write cycles on run records.
	mu sync.Mutex
}

func New(store kv.Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func runKey(id string) kv.Key      { return kv.Key{"run", id} }
func artifactKey(id string) kv.Key { return kv.Key{"artifact", id} }

// Begin records a new pending run.
func (r *Registry) Begin(ctx context.Context, wf Workflow) (Run, error) {
	run := Run{
		ID:        r.newID(),
		Workflow:  wf,
		State:     RunPending,
		StartedAt: r.now().UTC(),
	}
	if err := r.put(ctx, run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Start moves a pending run to running.
func (r *Registry) Start(ctx context.Context, id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.Get(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if err := transition(&run, RunRunning); err != nil {
		return Run{}, err
	}
	return run, r.put(ctx, run)
}

// Finish marks the run succeeded, or failed when runErr is non-nil. A
// non-nil artifact is stored in the same batch as the run record.
func (r *Registry) Finish(ctx context.Context, id string, artifact *types.PodcastArtifact, runErr error) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.Get(ctx, id)
	if err != nil {
		return Run{}, err
	}
	to := RunSucceeded
	if runErr != nil {
		to = RunFailed
	}
	if err := transition(&run, to); err != nil {
		return Run{}, err
	}
	run.FinishedAt = r.now().UTC()
	if runErr != nil {
		run.ErrorKind = types.KindOf(runErr)
		run.Message = types.UserMessage(runErr)
	}

	entries := make([]kv.Entry, 0, 2)
	if artifact != nil {
		run.ArtifactID = artifact.ID
		data, err := msgpack.Marshal(artifact)
		if err != nil {
			return Run{}, err
		}
		entries = append(entries, kv.Entry{Key: artifactKey(artifact.ID), Value: data})
	}
	data, err := msgpack.Marshal(run)
	if err != nil {
		return Run{}, err
	}
	entries = append(entries, kv.Entry{Key: runKey(run.ID), Value: data})
	if err := r.store.BatchSet(ctx, entries); err != nil {
		return Run{}, fmt.Errorf("registry: finish %s: %w", id, err)
	}
	return run, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Run, error) {
	data, err := r.store.Get(ctx, runKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	var run Run
	if err := msgpack.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("registry: decode run %s: %w", id, err)
	}
	return run, nil
}

func (r *Registry) Artifact(ctx context.Context, id string) (types.PodcastArtifact, error) {
	data, err := r.store.Get(ctx, artifactKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return types.PodcastArtifact{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	if err != nil {
		return types.PodcastArtifact{}, err
	}
	var a types.PodcastArtifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return types.PodcastArtifact{}, fmt.Errorf("registry: decode artifact %s: %w", id, err)
	}
	return a, nil
}

// Delete removes a run and the artifact record it points at. Only
// terminal runs can be deleted.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !run.State.Terminal() {
		return fmt.Errorf("registry: run %s is still %s", id, run.State)
	}
	if run.ArtifactID != "" {
		if err := r.store.Delete(ctx, artifactKey(run.ArtifactID)); err != nil {
			return fmt.Errorf("registry: delete artifact %s: %w", run.ArtifactID, err)
		}
	}
	if err := r.store.Delete(ctx, runKey(id)); err != nil {
		return fmt.Errorf("registry: delete run %s: %w", id, err)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 means all.
// Records that fail to decode are skipped.
func (r *Registry) List(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	for e, err := range r.store.List(ctx, kv.Key{"run"}) {
		if err != nil {
			return nil, err
		}
		var run Run
		if err := msgpack.Unmarshal(e.Value, &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *Registry) put(ctx context.Context, run Run) error {
	data, err := msgpack.Marshal(run)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, runKey(run.ID), data)
}

func transition(run *Run, to RunState) error {
	if !isValidTransition(run.State, to) {
		return fmt.Errorf("registry: invalid transition for run %s: %s -> %s", run.ID, run.State, to)
	}
	run.State = to
	return nil
}

// isValidTransition enforces the run state machine edges. A pending run may
// fail directly when validation rejects it before any work starts.
func isValidTransition(from, to RunState) bool {
	switch from {
	case RunPending:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunSucceeded || to == RunFailed
	default:
		return false
	}
}
