package reindex

import (
	"context"
	"strings"

	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type IndexDescriptor struct {
	Name string
	// CreationTimestamp is in epoch millis.
	CreationTimestamp int64
	Mapping           Mapping
}

// Catalog answers index queries against the cluster. It never caches.
type Catalog struct {
	es                es.ES
	ignoreSystemIndex bool
}

func NewCatalog(esInstance es.ES) *Catalog {
	return &Catalog{es: esInstance}
}

func (c *Catalog) WithIgnoreSystemIndex(ignoreSystemIndex bool) *Catalog {
	c.ignoreSystemIndex = ignoreSystemIndex
	return c
}

// ListIndices returns the indices matching pattern, ordered by name. Nothing
// matching is an empty result, not an error.
func (c *Catalog) ListIndices(ctx context.Context, pattern string) ([]*IndexDescriptor, error) {
	indexes, err := c.es.GetIndexes(ctx, pattern)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if c.ignoreSystemIndex {
		indexes = lo.Filter(indexes, func(index *es.IndexInfo, _ int) bool {
			return !strings.HasPrefix(index.Index, ".")
		})
	}

	descriptors := lo.Map(indexes, func(index *es.IndexInfo, _ int) *IndexDescriptor {
		return &IndexDescriptor{
			Name:              index.Index,
			CreationTimestamp: index.CreationDate,
		}
	})
	utils.GetLogger(ctx).Debugf("pattern %s matches %d indexes", pattern, len(descriptors))
	return descriptors, nil
}

func (c *Catalog) GetMapping(ctx context.Context, index string) (Mapping, error) {
	mapping, err := c.es.GetIndexMapping(ctx, index)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return mapping, nil
}

func (c *Catalog) IndexExisted(ctx context.Context, index string) (bool, error) {
	existed, err := c.es.IndexExisted(ctx, index)
	return existed, errors.WithStack(err)
}

func (c *Catalog) Count(ctx context.Context, index string) (uint64, error) {
	count, err := c.es.Count(ctx, index)
	return count, errors.WithStack(err)
}
