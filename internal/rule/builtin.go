package rule

import (
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

func allowSet(kinds ...version.DiffKind) map[version.DiffKind]bool {
	m := make(map[version.DiffKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// Builtin returns the named built-in rule (§6's closed set), or false if
// name is not one of them.
func Builtin(name string) (model.Rule, bool) {
	switch name {
	case "default":
		return model.Rule{
			Name:        "default",
			MinImageAge: 3 * time.Hour,
			Allow:       allowSet(version.DiffDigest, version.DiffBuild, version.DiffPatch, version.DiffMinor),
		}, true
	case "strict":
		return model.Rule{
			Name:        "strict",
			MinImageAge: 24 * time.Hour,
			Allow:       allowSet(version.DiffPatch),
		}, true
	case "patch_only":
		return model.Rule{
			Name:        "patch_only",
			MinImageAge: 3 * time.Hour,
			Allow:       allowSet(version.DiffPatch),
		}, true
	case "digest_only":
		return model.Rule{
			Name:        "digest_only",
			MinImageAge: 24 * time.Hour,
			Allow:       allowSet(version.DiffDigest),
		}, true
	case "security_only":
		return model.Rule{
			Name:        "security_only",
			MinImageAge: 1 * time.Hour,
			Allow:       allowSet(version.DiffDigest, version.DiffBuild, version.DiffPatch),
		}, true
	case "ci_cd":
		return model.Rule{
			Name:        "ci_cd",
			MinImageAge: 0,
			Allow:       allowSet(version.DiffDigest, version.DiffBuild),
		}, true
	case "conservative":
		return model.Rule{
			Name:        "conservative",
			MinImageAge: 7 * 24 * time.Hour,
			Allow:       allowSet(version.DiffPatch),
			LagPolicy:   map[string]int{"major": 1, "minor": 1},
		}, true
	case "relaxed":
		return model.Rule{
			Name:               "relaxed",
			MinImageAge:        24 * time.Hour,
			ProgressiveUpgrade: true,
			Allow:              allowSet(version.DiffDigest, version.DiffBuild, version.DiffPatch, version.DiffMinor, version.DiffMajor),
			Conditions: map[version.DiffKind]model.Condition{
				version.DiffMajor: {Require: allowSet(version.DiffMinor, version.DiffPatch, version.DiffBuild)},
			},
		}, true
	case "permissive":
		return model.Rule{
			Name:               "permissive",
			MinImageAge:        0,
			ProgressiveUpgrade: true,
			Allow: allowSet(
				version.DiffDigest, version.DiffBuild, version.DiffPatch,
				version.DiffMinor, version.DiffMajor, version.DiffSchemeChange,
			),
		}, true
	default:
		return model.Rule{}, false
	}
}

// BuiltinNames is the closed set of built-in rule names (§6).
var BuiltinNames = []string{
	"default", "strict", "patch_only", "digest_only",
	"security_only", "ci_cd", "conservative", "relaxed", "permissive",
}
