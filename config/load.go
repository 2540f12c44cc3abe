package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "ELA"

// NewViper returns a viper instance reading ELA_* environment variables,
// e.g. ELA_ELASTIC_PASSWORD for elastic.password.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{
		"elastic.addresses", "elastic.user", "elastic.password", "elastic.insecure_skip_verify",
		"reindex.index_pattern", "reindex.target_suffix", "reindex.state_file",
		"reindex.poll_interval", "reindex.parallelism", "reindex.ignore_system_index",
		"reindex.verify_doc_count", "reindex.show_progress",
		"provision.index_prefix", "provision.index_count", "provision.docs_per_index",
		"provision.template_name", "provision.template_file",
		"provision.policy_name", "provision.policy_file",
		"status.address", "status.user", "status.password",
		"level", "log_file",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.fillSections()
	return &cfg, nil
}

func (cfg *Config) fillSections() {
	if cfg.ESConfig == nil {
		cfg.ESConfig = &ESConfig{}
	}
	if cfg.Reindex == nil {
		cfg.Reindex = &ReindexCfg{}
	}
	if cfg.Provision == nil {
		cfg.Provision = &ProvisionCfg{}
	}
	if cfg.Status == nil {
		cfg.Status = &StatusCfg{}
	}
	if cfg.Reindex.PollInterval <= 0 {
		cfg.Reindex.PollInterval = DefaultPollInterval
	}
	if cfg.Reindex.Parallelism == 0 {
		cfg.Reindex.Parallelism = 1
	}
	if cfg.Provision.IndexCount == 0 {
		cfg.Provision.IndexCount = DefaultIndexCount
	}
	if cfg.Provision.DocsPerIndex == 0 {
		cfg.Provision.DocsPerIndex = DefaultDocsPerIndex
	}
}

// ValidationError lists every missing or malformed setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func (cfg *Config) ValidateElastic() error {
	var problems []string
	if cfg.ESConfig == nil || len(cfg.ESConfig.Addresses) == 0 {
		problems = append(problems, "elastic.addresses is required")
	}
	if cfg.ESConfig == nil || cfg.ESConfig.User == "" {
		problems = append(problems, "elastic.user is required")
	}
	if cfg.ESConfig == nil || cfg.ESConfig.Password == "" {
		problems = append(problems, "elastic.password is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateReindex checks the settings the reindex driver needs. None of them
// has a default so a missing value never points the run at the wrong indices.
func (cfg *Config) ValidateReindex() error {
	var problems []string
	if err := cfg.ValidateElastic(); err != nil {
		problems = append(problems, err.(*ValidationError).Problems...)
	}

	r := cfg.Reindex
	if r == nil {
		r = &ReindexCfg{}
	}
	if r.IndexPattern == "" {
		problems = append(problems, "reindex.index_pattern is required")
	}
	if r.TargetSuffix == "" {
		problems = append(problems, "reindex.target_suffix is required")
	} else if strings.ContainsAny(r.TargetSuffix, "*,/ \\\"<>|?#") {
		problems = append(problems, fmt.Sprintf("reindex.target_suffix %q contains characters not allowed in index names", r.TargetSuffix))
	}
	if r.StateFile == "" {
		problems = append(problems, "reindex.state_file is required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (cfg *Config) ValidateProvision() error {
	var problems []string
	if err := cfg.ValidateElastic(); err != nil {
		problems = append(problems, err.(*ValidationError).Problems...)
	}

	p := cfg.Provision
	if p == nil {
		p = &ProvisionCfg{}
	}
	if p.IndexPrefix == "" {
		problems = append(problems, "provision.index_prefix is required")
	}
	if p.TemplateName != "" && p.TemplateFile == "" {
		problems = append(problems, "provision.template_file is required when template_name is set")
	}
	if p.PolicyName != "" && p.PolicyFile == "" {
		problems = append(problems, "provision.policy_file is required when policy_name is set")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
