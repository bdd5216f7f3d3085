package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctpy/internal/model"
)

var ErrStageComplete = errors.New("stage already complete")

// Tracking returns the completion record of the pipeline's experiment.
func (p *Pipeline) Tracking(ctx context.Context) (model.ExperimentTracking, bool, error) {
	if err := p.ensureStarted(); err != nil {
		return model.ExperimentTracking{}, false, err
	}
	return p.store.GetExperiment(ctx, p.experiment)
}

// ResetTracking clears the given stages, or every stage when none are named.
func (p *Pipeline) ResetTracking(ctx context.Context, stages ...model.Stage) error {
	tracking, err := p.loadTracking(ctx)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		tracking.Completed = nil
	} else {
		for _, stage := range stages {
			delete(tracking.Completed, stage)
		}
	}
	if err := p.store.SaveExperiment(ctx, tracking); err != nil {
		return fmt.Errorf("save experiment tracking: %w", err)
	}
	p.logger.Info("reset tracking", "experiment", p.experiment, "stages", len(stages))
	return nil
}

// runStage refuses a completed stage unless forced, runs body and marks the
// stage complete only when body succeeds.
func (p *Pipeline) runStage(ctx context.Context, stage model.Stage, opts StageOptions, body func(ctx context.Context) (StageReport, error)) (StageReport, error) {
	if err := p.ensureStarted(); err != nil {
		return StageReport{}, err
	}
	tracking, err := p.loadTracking(ctx)
	if err != nil {
		return StageReport{}, err
	}
	if tracking.IsComplete(stage) && !opts.Force {
		return StageReport{}, fmt.Errorf("%w: %s in experiment %s", ErrStageComplete, stage, p.experiment)
	}

	started := time.Now()
	p.logger.Info("stage started", "stage", stage, "experiment", p.experiment, "workers", p.workers)
	report, err := body(ctx)
	report.Stage = stage
	if err != nil {
		p.logger.Error("stage failed", "stage", stage, "units", report.Units, "err", err)
		return report, err
	}
	if err := p.completeStage(ctx, stage); err != nil {
		return report, err
	}
	p.logger.Info("stage complete",
		"stage", stage,
		"units", report.Units,
		"samples", report.Samples,
		"skipped", report.Skipped,
		"records", report.Records,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return report, nil
}

func (p *Pipeline) completeStage(ctx context.Context, stage model.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tracking, err := p.loadTracking(ctx)
	if err != nil {
		return err
	}
	if tracking.Completed == nil {
		tracking.Completed = make(map[model.Stage]time.Time)
	}
	tracking.Completed[stage] = time.Now().UTC()
	if err := p.store.SaveExperiment(ctx, tracking); err != nil {
		return fmt.Errorf("save experiment tracking: %w", err)
	}
	return nil
}

func (p *Pipeline) loadTracking(ctx context.Context) (model.ExperimentTracking, error) {
	tracking, ok, err := p.store.GetExperiment(ctx, p.experiment)
	if err != nil {
		return model.ExperimentTracking{}, fmt.Errorf("load experiment tracking: %w", err)
	}
	if !ok {
		tracking = model.ExperimentTracking{
			VersionedRecord: model.CurrentVersion(),
			Name:            p.experiment,
			BeganAt:         time.Now().UTC(),
		}
	}
	return tracking, nil
}
