package reindex

import (
	"context"

	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
)

// Executor starts background copies. It never retries.
type Executor struct {
	es      es.ES
	catalog *Catalog
}

func NewExecutor(esInstance es.ES, catalog *Catalog) *Executor {
	return &Executor{
		es:      esInstance,
		catalog: catalog,
	}
}

// StartMigration starts copying sourceIndex into targetIndex and returns the
// job handle. An existing target is a TargetConflict and nothing is started.
func (e *Executor) StartMigration(ctx context.Context, sourceIndex, targetIndex string) (string, error) {
	if sourceIndex == targetIndex {
		return "", errors.Errorf("index %s can not migrate into itself", sourceIndex)
	}

	existed, err := e.catalog.IndexExisted(ctx, targetIndex)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if existed {
		return "", errors.WithStack(utils.NewCustomError(utils.TargetConflict,
			"target index %s of %s already exists", targetIndex, sourceIndex))
	}

	jobHandle, err := e.es.Reindex(ctx, sourceIndex, targetIndex)
	if err != nil {
		return "", errors.WithStack(err)
	}
	utils.GetLogger(ctx).Infof("reindex %s -> %s started as task %s", sourceIndex, targetIndex, jobHandle)
	return jobHandle, nil
}
