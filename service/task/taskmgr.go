package task

import (
	"context"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// TaskMgr runs the configured tasks in order against one cluster.
type TaskMgr struct {
	cfg        *config.Config
	esInstance es.ES
	taskCfgs   []*config.TaskCfg
	observer   reindex.Observer
}

func NewTaskMgr(ctx context.Context, cfg *config.Config) (*TaskMgr, error) {
	if err := cfg.ValidateElastic(); err != nil {
		return nil, errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}

	esInstance, err := es.NewESV0(cfg.ESConfig).GetES(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewTaskMgrWithES(cfg, esInstance), nil
}

func NewTaskMgrWithES(cfg *config.Config, esInstance es.ES) *TaskMgr {
	return &TaskMgr{
		cfg:        cfg,
		esInstance: esInstance,
		taskCfgs:   cfg.Tasks,
	}
}

func (t *TaskMgr) WithObserver(observer reindex.Observer) *TaskMgr {
	t.observer = observer
	return t
}

func (t *TaskMgr) ES() es.ES {
	return t.esInstance
}

// Run runs the tasks named in taskNames, or all of them, in config order. It
// stops at the first failing task or when ctx is done.
func (t *TaskMgr) Run(ctx context.Context, taskNames ...string) error {
	knownNames := lo.Map(t.taskCfgs, func(taskCfg *config.TaskCfg, _ int) string {
		return taskCfg.Name
	})
	if unknown := lo.Without(taskNames, knownNames...); len(unknown) > 0 {
		return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "unknown tasks %v", unknown))
	}

	for _, taskCfg := range t.taskCfgs {
		if len(taskNames) > 0 && !lo.Contains(taskNames, taskCfg.Name) {
			continue
		}
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}

		task := NewTaskWithES(ctx, taskCfg, t.cfg, t.esInstance)
		if t.observer != nil {
			task = task.WithObserver(t.observer)
		}
		if _, err := task.Run(); err != nil {
			return errors.Wrapf(err, "task %s", taskCfg.Name)
		}
	}
	return nil
}
