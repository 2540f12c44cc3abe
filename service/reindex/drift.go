package reindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/r3labs/diff/v2"
	"github.com/samber/lo"
)

type MappingFetcher interface {
	GetMapping(ctx context.Context, index string) (Mapping, error)
}

// SelectReference returns the latest created index, the greatest name wins a
// tie.
func SelectReference(descriptors []*IndexDescriptor) (*IndexDescriptor, error) {
	if len(descriptors) == 0 {
		return nil, errors.New("no index to select a reference from")
	}

	return lo.MaxBy(descriptors, func(a, b *IndexDescriptor) bool {
		if a.CreationTimestamp != b.CreationTimestamp {
			return a.CreationTimestamp > b.CreationTimestamp
		}
		return a.Name > b.Name
	}), nil
}

// MappingsEqual compares two mappings over the whole document. An empty
// object equals a missing one.
func MappingsEqual(a, b Mapping) bool {
	return cmp.Equal(map[string]interface{}(a), map[string]interface{}(b), cmpopts.EquateEmpty())
}

// DescribeDrift lists the paths where mapping differs from reference, one
// change per line.
func DescribeDrift(reference, mapping Mapping) []string {
	changelog, err := diff.Diff(map[string]interface{}(reference), map[string]interface{}(mapping),
		diff.DisableStructValues(), diff.AllowTypeMismatch(true))
	if err != nil {
		return []string{err.Error()}
	}

	return lo.Map(changelog, func(change diff.Change, _ int) string {
		return fmt.Sprintf("%s %s: %v -> %v", change.Type, strings.Join(change.Path, "."), change.From, change.To)
	})
}

type DriftDetector struct {
	fetcher MappingFetcher
}

func NewDriftDetector(fetcher MappingFetcher) *DriftDetector {
	return &DriftDetector{fetcher: fetcher}
}

// ComputeDrift returns every index whose mapping differs from the reference,
// keyed by name with its own mapping. Indices that vanish before their
// mapping is read are skipped.
func (d *DriftDetector) ComputeDrift(ctx context.Context, descriptors []*IndexDescriptor) (map[string]Mapping, error) {
	_, drifted, err := d.Detect(ctx, descriptors)
	return drifted, errors.WithStack(err)
}

// Detect is ComputeDrift that also returns the reference it compared against.
// A reference that vanishes is dropped and the next latest index takes its
// place.
func (d *DriftDetector) Detect(ctx context.Context, descriptors []*IndexDescriptor) (string, map[string]Mapping, error) {
	remaining := descriptors
	for {
		reference, err := SelectReference(remaining)
		if err != nil {
			return "", nil, errors.WithStack(err)
		}

		drifted := map[string]Mapping{}
		if len(remaining) == 1 {
			return reference.Name, drifted, nil
		}

		referenceMapping, err := d.fetcher.GetMapping(ctx, reference.Name)
		if err != nil {
			if utils.IsCustomError(err, utils.NonIndexExisted) {
				utils.GetLogger(ctx).Warnf("reference index %s vanished, select another", reference.Name)
				remaining = lo.Filter(remaining, func(descriptor *IndexDescriptor, _ int) bool {
					return descriptor.Name != reference.Name
				})
				continue
			}
			return "", nil, errors.WithStack(err)
		}
		utils.GetLogger(ctx).Infof("reference index is %s", reference.Name)

		for _, descriptor := range remaining {
			if descriptor.Name == reference.Name {
				continue
			}

			mapping, err := d.fetcher.GetMapping(ctx, descriptor.Name)
			if err != nil {
				if utils.IsCustomError(err, utils.NonIndexExisted) {
					utils.GetLogger(ctx).Warnf("index %s vanished, skip it", descriptor.Name)
					continue
				}
				return "", nil, errors.WithStack(err)
			}

			if MappingsEqual(referenceMapping, mapping) {
				continue
			}

			utils.GetLogger(ctx).WithField("changes", DescribeDrift(referenceMapping, mapping)).
				Infof("index %s drifts from %s", descriptor.Name, reference.Name)
			drifted[descriptor.Name] = mapping
		}
		return reference.Name, drifted, nil
	}
}
