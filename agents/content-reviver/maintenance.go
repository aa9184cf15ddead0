package contentreviver

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/yash21saraf/revival.ai/shared/scheduler"
)

type pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// PruneJob removes expired reports on the maintenance schedule.
type PruneJob struct {
	store pruner
}

func NewPruneJob(store pruner) *PruneJob {
	return &PruneJob{store: store}
}

func (p *PruneJob) Name() string {
	return "Report Pruner"
}

func (p *PruneJob) RunOnce(ctx context.Context) error {
	n, err := p.store.Prune(ctx)
	if err != nil {
		return err
	}
	log.Printf("Pruned %d expired reports", n)
	return nil
}

// MaintenanceJobs returns the scheduled jobs for the stores this reviver
// owns. Injected stores without pruning support get none.
func (r *Reviver) MaintenanceJobs() []scheduler.Job {
	p, ok := r.store.(pruner)
	if !ok {
		return nil
	}
	return []scheduler.Job{NewPruneJob(p)}
}
