package merge

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-reconciler/core/jobs"
	"catalog-reconciler/core/models"

	"github.com/google/uuid"
)

// JobType runs a commit in the background.
const JobType = "merge_commit"

type commitPayload struct {
	Selection Selection `json:"selection"`
	BatchID   string    `json:"batch_id"`
	Actor     string    `json:"actor,omitempty"`
}

// RegisterJobs registers the merge_commit handler on o.
func (m *Manager) RegisterJobs(o *jobs.Orchestrator) {
	o.Register(JobType, m.handleCommit)
}

// CommitAsync enqueues a commit and returns its batch id and job.
func (m *Manager) CommitAsync(ctx context.Context, o *jobs.Orchestrator, sel Selection, opts CommitOptions) (string, *models.Job, error) {
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}
	if opts.BatchID == "" {
		opts.BatchID = uuid.New().String()
	}
	job, err := o.Enqueue(ctx, JobType, commitPayload{Selection: sel, BatchID: opts.BatchID, Actor: opts.Actor})
	if err != nil {
		return "", nil, err
	}
	return opts.BatchID, job, nil
}

func (m *Manager) handleCommit(ctx context.Context, job *models.Job) error {
	var p commitPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	// partial batches are reported on the batch; the job itself succeeded
	_, err := m.Commit(ctx, p.Selection, CommitOptions{BatchID: p.BatchID, Actor: p.Actor})
	return err
}
