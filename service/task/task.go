package task

import (
	"context"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/service/provision"
	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Task struct {
	ctx        context.Context
	taskCfg    *config.TaskCfg
	cfg        *config.Config
	esInstance es.ES
	observer   reindex.Observer
}

func NewTaskWithES(ctx context.Context, taskCfg *config.TaskCfg, cfg *config.Config, esInstance es.ES) *Task {
	taskId := uuid.New().String()

	if lo.IsNotEmpty(esInstance) {
		ctx = utils.SetCtxKeyESVersion(ctx, esInstance.GetClusterVersion())
	}

	ctx = utils.SetCtxKeyTaskName(ctx, taskCfg.Name)
	ctx = utils.SetCtxKeyTaskID(ctx, taskId)
	ctx = utils.SetCtxKeyTaskAction(ctx, string(taskCfg.TaskAction))
	ctx = utils.SetCtxKeyShowProgress(ctx, cfg.Reindex.ShowProgress)

	return &Task{
		ctx:        ctx,
		taskCfg:    taskCfg,
		cfg:        cfg,
		esInstance: esInstance,
	}
}

func (t *Task) WithObserver(observer reindex.Observer) *Task {
	t.observer = observer
	return t
}

func (t *Task) GetCtx() context.Context {
	return t.ctx
}

func (t *Task) GetID() string {
	return utils.GetCtxKeyTaskID(t.ctx)
}

func (t *Task) Reindex() (*reindex.Report, error) {
	if err := t.cfg.ValidateReindex(); err != nil {
		return nil, errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}

	driver := reindex.NewDriver(t.esInstance, t.cfg.Reindex).WithDryRun(t.taskCfg.DryRun)
	if t.observer != nil {
		driver = driver.WithObserver(t.observer)
	}
	report, err := driver.Run(t.ctx)
	return report, errors.WithStack(err)
}

func (t *Task) provisioner() (*provision.Provisioner, error) {
	if err := t.cfg.ValidateProvision(); err != nil {
		return nil, errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}
	return provision.NewProvisioner(t.esInstance, t.cfg.Provision), nil
}

func (t *Task) ProvisionCreate() error {
	p, err := t.provisioner()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(p.Create(t.ctx))
}

func (t *Task) ProvisionDelete() error {
	p, err := t.provisioner()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(p.Delete(t.ctx))
}

func (t *Task) ApplyClusterSettings() error {
	if err := t.cfg.ValidateElastic(); err != nil {
		return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}
	return errors.WithStack(provision.NewProvisioner(t.esInstance, t.cfg.Provision).ApplyClusterSettings(t.ctx))
}

// Run performs the task's action. Only reindex returns a report.
func (t *Task) Run() (*reindex.Report, error) {
	ctx := t.GetCtx()
	utils.GetLogger(ctx).Info("task start")

	taskAction := config.TaskAction(utils.GetCtxKeyTaskAction(ctx))
	switch taskAction {
	case config.TaskActionReindex:
		report, err := t.Reindex()
		if err != nil {
			return report, errors.WithStack(err)
		}
		return report, nil
	case config.TaskActionProvisionCreate:
		if err := t.ProvisionCreate(); err != nil {
			return nil, errors.WithStack(err)
		}
	case config.TaskActionProvisionDelete:
		if err := t.ProvisionDelete(); err != nil {
			return nil, errors.WithStack(err)
		}
	case config.TaskActionClusterSettings:
		if err := t.ApplyClusterSettings(); err != nil {
			return nil, errors.WithStack(err)
		}
	default:
		taskName := utils.GetCtxKeyTaskName(ctx)
		return nil, errors.WithStack(utils.NewCustomError(utils.InvalidConfig,
			"%s invalid task action %s", taskName, taskAction))
	}

	utils.GetLogger(ctx).Info("task done")
	return nil, nil
}
