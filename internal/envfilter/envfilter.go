// Package envfilter implements the Env-Filter (SPEC_FULL.md §4.5):
// deciding which environment variables of the old container survive an
// update.
package envfilter

import (
	"strings"

	"github.com/gobwas/glob"
)

// Config mirrors the envFiltering section of the external configuration
// (SPEC_FULL.md §6).
type Config struct {
	Enabled                bool
	ExcludePatterns        []string
	PreservePatterns       []string
	ContainerSpecificRules map[string]ScopedRules // keyed by case-insensitive substring of container name
}

type ScopedRules struct {
	Exclude []string
	Preserve []string
}

// Apply decides the env for the new container given the old container's
// env, the image's own declared env, and the container name (for scoped
// rule matching).
func Apply(oldEnv, imageEnv []string, cfg Config, containerName string) []string {
	oldMap := toMap(oldEnv)
	imageMap := toMap(imageEnv)

	exclude, preserve := cfg.ExcludePatterns, cfg.PreservePatterns
	for namePart, scoped := range cfg.ContainerSpecificRules {
		if strings.Contains(strings.ToLower(containerName), strings.ToLower(namePart)) {
			exclude = scoped.Exclude
			preserve = scoped.Preserve
			break
		}
	}

	excludeGlobs := compile(exclude)
	preserveGlobs := compile(preserve)

	result := make(map[string]string, len(imageMap))
	for k, v := range imageMap {
		result[k] = v
	}

	for k, v := range oldMap {
		if !cfg.Enabled {
			result[k] = v
			continue
		}
		if matchesAny(preserveGlobs, k) {
			result[k] = v
			continue
		}
		if matchesAny(excludeGlobs, k) {
			delete(result, k)
			continue
		}
		// present in old but not in image, or present in both and the
		// user's value should win over the image default.
		result[k] = v
	}

	out := make([]string, 0, len(result))
	for k, v := range result {
		out = append(out, k+"="+v)
	}
	return out
}

func toMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		if idx := strings.Index(e, "="); idx != -1 {
			m[e[:idx]] = e[idx+1:]
		}
	}
	return m
}

func compile(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
