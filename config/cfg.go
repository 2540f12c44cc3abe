package config

import "time"

type TaskAction string

const (
	TaskActionReindex         TaskAction = "reindex"
	TaskActionProvisionCreate TaskAction = "provision_create"
	TaskActionProvisionDelete TaskAction = "provision_delete"
	TaskActionClusterSettings TaskAction = "cluster_settings"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultIndexCount   = 3
	DefaultDocsPerIndex = 5
)

type TaskCfg struct {
	Name       string     `mapstructure:"name"`
	TaskAction TaskAction `mapstructure:"action"`
	DryRun     bool       `mapstructure:"dry_run"`
}

type ESConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
}

type ReindexCfg struct {
	IndexPattern      string        `mapstructure:"index_pattern"`
	TargetSuffix      string        `mapstructure:"target_suffix"`
	StateFile         string        `mapstructure:"state_file"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Parallelism       uint          `mapstructure:"parallelism"`
	IgnoreSystemIndex bool          `mapstructure:"ignore_system_index"`
	VerifyDocCount    bool          `mapstructure:"verify_doc_count"`
	ShowProgress      bool          `mapstructure:"show_progress"`
}

type ProvisionCfg struct {
	IndexPrefix     string                 `mapstructure:"index_prefix"`
	IndexCount      uint                   `mapstructure:"index_count"`
	DocsPerIndex    uint                   `mapstructure:"docs_per_index"`
	TemplateName    string                 `mapstructure:"template_name"`
	TemplateFile    string                 `mapstructure:"template_file"`
	PolicyName      string                 `mapstructure:"policy_name"`
	PolicyFile      string                 `mapstructure:"policy_file"`
	ClusterSettings map[string]interface{} `mapstructure:"cluster_settings"`
}

type StatusCfg struct {
	Address  string `mapstructure:"address"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type Config struct {
	ESConfig  *ESConfig     `mapstructure:"elastic"`
	Reindex   *ReindexCfg   `mapstructure:"reindex"`
	Provision *ProvisionCfg `mapstructure:"provision"`
	Tasks     []*TaskCfg    `mapstructure:"tasks"`
	Status    *StatusCfg    `mapstructure:"status"`
	Level     string        `mapstructure:"level"`
	LogFile   string        `mapstructure:"log_file"`
}
