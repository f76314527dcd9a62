// Package config implements the ambient configuration layer (SPEC_FULL.md
// §6, §9, §10): the typed struct the out-of-scope INI reader feeds, its
// defaults, and its env-var overlay, loaded with github.com/spf13/viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/rule"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

// General mirrors §6's `general { dryRun, cronSchedule }`.
type General struct {
	DryRun       bool
	CronSchedule string
}

// Update mirrors §6's `update { delayBetweenUpdates }`.
type Update struct {
	DelayBetweenUpdates time.Duration
}

// UpdateVerification mirrors §6's `updateVerification { maxWait, stableTime,
// checkInterval, gracePeriod }` (§4.8).
type UpdateVerification struct {
	MaxWait       time.Duration
	StableTime    time.Duration
	CheckInterval time.Duration
	GracePeriod   time.Duration
}

// Prune mirrors §6's `prune { removeUnusedImages, removeOldContainers,
// minBackupAge, minBackupsToKeep }` (§4.10's prune policy).
type Prune struct {
	RemoveUnusedImages  bool
	RemoveOldContainers bool
	MinBackupAge        time.Duration
	MinBackupsToKeep    int
}

// Script mirrors §6's `preScripts`/`postScripts` shape. ContinueOnFailure
// only applies to pre-scripts and RollbackOnFailure only to post-scripts;
// both fields are carried on one struct so the two sections decode
// identically, following the viper-friendly "one shape per repeated
// section" convention.
type Script struct {
	Enabled           bool
	ScriptsDirectory  string
	Timeout           time.Duration
	ContinueOnFailure bool
	RollbackOnFailure bool
}

// RegistryEndpoint mirrors §6's `docker`/`ghcr { apiUrl, pageCrawlLimit,
// pageSize }`.
type RegistryEndpoint struct {
	ApiUrl         string
	PageCrawlLimit int
	PageSize       int
}

// RegistryAuth mirrors §6's `registryAuth { enabled, credentialsFile }`.
type RegistryAuth struct {
	Enabled         bool
	CredentialsFile string
}

// SelfUpdate mirrors §6's "Helper container for self-update" naming rule:
// `selfUpdate { helperNamePrefix, removeHelperContainer }`.
type SelfUpdate struct {
	HelperNamePrefix      string
	RemoveHelperContainer bool
}

// ScopedEnvRule is one entry of envFiltering.containerSpecificRules.
type ScopedEnvRule struct {
	Exclude  []string
	Preserve []string
}

// EnvFiltering mirrors §6's `envFiltering` section (§4.5).
type EnvFiltering struct {
	Enabled                bool
	ExcludePatterns        []string
	PreservePatterns       []string
	ContainerSpecificRules map[string]ScopedEnvRule
}

// RuleSpec is a YAML/viper-decodable rule definition; BuildRules converts
// it into the runtime model.Rule (whose Allow/Conditions maps are keyed by
// version.DiffKind, not a plain string, so they cannot be decoded directly).
type RuleSpec struct {
	MinImageAge        time.Duration
	ProgressiveUpgrade bool
	Allow              []string
	LagPolicy          map[string]int
	Conditions         map[string][]string // diffKind -> required diff kinds
}

// Config is the full typed configuration (§6) the out-of-scope INI reader
// feeds this module.
type Config struct {
	General            General
	Update             Update
	UpdateVerification UpdateVerification
	Prune              Prune
	PreScripts         Script
	PostScripts        Script
	Docker             RegistryEndpoint
	GHCR               RegistryEndpoint
	RegistryAuth       RegistryAuth
	EnvFiltering       EnvFiltering
	SelfUpdate         SelfUpdate
	AssignmentsByName  map[string]string
	RuleLabelKey       string
	Rules              map[string]RuleSpec
}

// Defaults mirror §6 one-for-one; this is the literal DefaultX set bound
// into viper before any file/env overlay is read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.dryRun", true)
	v.SetDefault("general.cronSchedule", "")
	v.SetDefault("update.delayBetweenUpdates", 10*time.Second)
	v.SetDefault("updateVerification.maxWait", 2*time.Minute)
	v.SetDefault("updateVerification.stableTime", 10*time.Second)
	v.SetDefault("updateVerification.checkInterval", 2*time.Second)
	v.SetDefault("updateVerification.gracePeriod", 5*time.Second)
	v.SetDefault("prune.removeUnusedImages", false)
	v.SetDefault("prune.removeOldContainers", true)
	v.SetDefault("prune.minBackupAge", 24*time.Hour)
	v.SetDefault("prune.minBackupsToKeep", 3)
	v.SetDefault("preScripts.enabled", false)
	v.SetDefault("preScripts.scriptsDirectory", "/etc/captn-updater/scripts")
	v.SetDefault("preScripts.timeout", 30*time.Second)
	v.SetDefault("preScripts.continueOnFailure", false)
	v.SetDefault("postScripts.enabled", false)
	v.SetDefault("postScripts.scriptsDirectory", "/etc/captn-updater/scripts")
	v.SetDefault("postScripts.timeout", 30*time.Second)
	v.SetDefault("postScripts.rollbackOnFailure", true)
	v.SetDefault("docker.apiUrl", "https://registry-1.docker.io")
	v.SetDefault("docker.pageCrawlLimit", 100)
	v.SetDefault("docker.pageSize", 100)
	v.SetDefault("ghcr.apiUrl", "https://ghcr.io")
	v.SetDefault("ghcr.pageCrawlLimit", 100)
	v.SetDefault("ghcr.pageSize", 100)
	v.SetDefault("registryAuth.enabled", false)
	v.SetDefault("registryAuth.credentialsFile", "")
	v.SetDefault("envFiltering.enabled", false)
	v.SetDefault("selfUpdate.helperNamePrefix", "captn-updater-helper")
	v.SetDefault("selfUpdate.removeHelperContainer", true)
	v.SetDefault("ruleLabelKey", "captn.updater.rule")
}

// Load reads configFile (if non-empty and present), overlays CAPTN_*
// environment variables, and decodes into a Config. Unknown keys are a
// load-time error, never a silent warning, per §9's "Dynamic config
// values" note — a typo in the external INI reader's output must fail
// loudly rather than silently falling back to a default.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CAPTN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, apperrors.Wrap(apperrors.ConfigInvalid, err, "reading config file "+configFile)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, apperrors.Wrap(apperrors.ConfigInvalid, err, "decoding configuration")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Docker.PageCrawlLimit < 1 || cfg.Docker.PageCrawlLimit > 1000 {
		return apperrors.New(apperrors.ConfigInvalid, "docker.pageCrawlLimit must be in [1,1000]")
	}
	if cfg.Docker.PageSize < 1 || cfg.Docker.PageSize > 100 {
		return apperrors.New(apperrors.ConfigInvalid, "docker.pageSize must be in [1,100]")
	}
	if cfg.GHCR.PageCrawlLimit < 1 || cfg.GHCR.PageCrawlLimit > 1000 {
		return apperrors.New(apperrors.ConfigInvalid, "ghcr.pageCrawlLimit must be in [1,1000]")
	}
	if cfg.GHCR.PageSize < 1 || cfg.GHCR.PageSize > 100 {
		return apperrors.New(apperrors.ConfigInvalid, "ghcr.pageSize must be in [1,100]")
	}
	for name := range cfg.AssignmentsByName {
		if name == "" {
			return apperrors.New(apperrors.ConfigInvalid, "assignmentsByName has an empty container name key")
		}
	}
	return nil
}

// BuildRules resolves the closed built-in rule set overlaid with any
// user-defined rules from cfg.Rules, converting each RuleSpec's
// string-keyed Allow/Conditions into version.DiffKind-keyed model.Rule
// fields.
func BuildRules(cfg Config) (map[string]model.Rule, error) {
	rules := make(map[string]model.Rule, len(rule.BuiltinNames)+len(cfg.Rules))
	for _, name := range rule.BuiltinNames {
		builtin, _ := rule.Builtin(name)
		rules[name] = builtin
	}
	for name, spec := range cfg.Rules {
		r, err := buildRule(name, spec)
		if err != nil {
			return nil, err
		}
		rules[name] = r
	}
	return rules, nil
}

func buildRule(name string, spec RuleSpec) (model.Rule, error) {
	allow := make(map[version.DiffKind]bool, len(spec.Allow))
	for _, k := range spec.Allow {
		kind, err := parseDiffKind(k)
		if err != nil {
			return model.Rule{}, apperrors.Wrap(apperrors.RuleInvalid, err, "rule "+name)
		}
		allow[kind] = true
	}
	var conditions map[version.DiffKind]model.Condition
	if len(spec.Conditions) > 0 {
		conditions = make(map[version.DiffKind]model.Condition, len(spec.Conditions))
		for k, required := range spec.Conditions {
			kind, err := parseDiffKind(k)
			if err != nil {
				return model.Rule{}, apperrors.Wrap(apperrors.RuleInvalid, err, "rule "+name)
			}
			require := make(map[version.DiffKind]bool, len(required))
			for _, rk := range required {
				reqKind, err := parseDiffKind(rk)
				if err != nil {
					return model.Rule{}, apperrors.Wrap(apperrors.RuleInvalid, err, "rule "+name)
				}
				require[reqKind] = true
			}
			conditions[kind] = model.Condition{Require: require}
		}
	}
	return model.Rule{
		Name:               name,
		MinImageAge:        spec.MinImageAge,
		ProgressiveUpgrade: spec.ProgressiveUpgrade,
		Allow:              allow,
		Conditions:         conditions,
		LagPolicy:          spec.LagPolicy,
	}, nil
}

func parseDiffKind(s string) (version.DiffKind, error) {
	switch version.DiffKind(s) {
	case version.DiffNone, version.DiffDigest, version.DiffBuild, version.DiffPatch,
		version.DiffMinor, version.DiffMajor, version.DiffSchemeChange:
		return version.DiffKind(s), nil
	default:
		return "", apperrors.New(apperrors.RuleInvalid, "unknown diff kind "+s)
	}
}
