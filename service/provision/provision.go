package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const messageLength = 10

var messageCharset = append(append([]rune{}, lo.UpperCaseLettersCharset...), lo.NumbersCharset...)

// Provisioner sets up and tears down a family of sample indices with their
// index template and lifecycle policy.
type Provisioner struct {
	es  es.ES
	cfg *config.ProvisionCfg
	now func() time.Time
}

func NewProvisioner(esInstance es.ES, provisionCfg *config.ProvisionCfg) *Provisioner {
	return &Provisioner{
		es:  esInstance,
		cfg: provisionCfg,
		now: time.Now,
	}
}

// IndexNames returns <prefix>-000, <prefix>-001, ...
func (p *Provisioner) IndexNames() []string {
	return lo.Times(int(p.cfg.IndexCount), func(i int) string {
		return fmt.Sprintf("%s-%03d", p.cfg.IndexPrefix, i)
	})
}

// NewDocument returns a sample document with the current time and a random
// message.
func (p *Provisioner) NewDocument() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": p.now().Format(time.RFC3339Nano),
		"message":   lo.RandomString(messageLength, messageCharset),
	}
}

// Create puts the index template, creates and seeds the indices, then puts
// the lifecycle policy. It stops at the first error.
func (p *Provisioner) Create(ctx context.Context) error {
	if p.cfg.TemplateName != "" {
		template, err := readJSONFile(p.cfg.TemplateFile)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := p.es.PutIndexTemplate(ctx, p.cfg.TemplateName, template); err != nil {
			return errors.WithStack(err)
		}
		utils.GetLogger(ctx).Infof("index template %s created", p.cfg.TemplateName)
	}

	for _, index := range p.IndexNames() {
		if err := p.es.CreateIndex(ctx, index, nil); err != nil {
			return errors.WithStack(err)
		}
		for i := uint(0); i < p.cfg.DocsPerIndex; i++ {
			if err := p.es.IndexDocument(ctx, index, p.NewDocument()); err != nil {
				return errors.WithStack(err)
			}
		}
		utils.GetLogger(ctx).Infof("index %s created with %d documents", index, p.cfg.DocsPerIndex)
	}

	if p.cfg.PolicyName != "" {
		policy, err := readJSONFile(p.cfg.PolicyFile)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := p.es.PutLifecyclePolicy(ctx, p.cfg.PolicyName, policy); err != nil {
			return errors.WithStack(err)
		}
		utils.GetLogger(ctx).Infof("lifecycle policy %s created", p.cfg.PolicyName)
	}
	return nil
}

// Delete removes what Create made. It keeps going after a failure and returns
// every error. Indices that are already gone are not an error.
func (p *Provisioner) Delete(ctx context.Context) error {
	errs := &utils.Errs{}

	if p.cfg.TemplateName != "" {
		if err := p.es.DeleteIndexTemplate(ctx, p.cfg.TemplateName); err != nil {
			errs.Add(errors.WithStack(err))
		} else {
			utils.GetLogger(ctx).Infof("index template %s deleted", p.cfg.TemplateName)
		}
	}

	for _, index := range p.IndexNames() {
		err := p.es.DeleteIndex(ctx, index)
		switch {
		case err == nil:
			utils.GetLogger(ctx).Infof("index %s deleted", index)
		case utils.IsCustomError(err, utils.NonIndexExisted):
			utils.GetLogger(ctx).Infof("index %s does not exist", index)
		default:
			errs.Add(errors.WithStack(err))
		}
	}

	if p.cfg.PolicyName != "" {
		if err := p.es.DeleteLifecyclePolicy(ctx, p.cfg.PolicyName); err != nil {
			errs.Add(errors.WithStack(err))
		} else {
			utils.GetLogger(ctx).Infof("lifecycle policy %s deleted", p.cfg.PolicyName)
		}
	}
	return errs.Ret()
}

// ApplyClusterSettings puts the configured cluster settings.
func (p *Provisioner) ApplyClusterSettings(ctx context.Context) error {
	if len(p.cfg.ClusterSettings) == 0 {
		return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "provision.cluster_settings is empty"))
	}
	if err := p.es.PutClusterSettings(ctx, p.cfg.ClusterSettings); err != nil {
		return errors.WithStack(err)
	}
	utils.GetLogger(ctx).Infof("cluster settings %v applied", lo.Keys(p.cfg.ClusterSettings))
	return nil
}

func readJSONFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return body, nil
}
