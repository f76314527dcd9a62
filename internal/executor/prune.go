package executor

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// PruneConfig mirrors §4.10's prune-policy knobs (§6).
type PruneConfig struct {
	MinBackupAge     time.Duration
	MinBackupsToKeep int
	RemoveUnusedImages bool
}

var backupNamePattern = regexp.MustCompile(`^(.*)_bak_cu_(\d{8}_\d{6})$`)

// ContainerRemover is the narrow seam onto the Container Driver this
// package needs for pruning.
type ContainerRemover interface {
	List(ctx context.Context) ([]model.Container, error)
	Remove(ctx context.Context, containerID string, force bool) error
}

// PruneResult records what the prune pass removed, for the report (C12).
type PruneResult struct {
	RemovedContainers []string
	Errors            []error
}

// PruneBackups implements §4.10's "Prune policy (post-run)": a backup
// container (name matching "<anything>_bak_cu_<timestamp>", state
// exited) is eligible for deletion only when its age is at least
// minBackupAge AND the count of retained backups sharing its base name
// is still at least minBackupsToKeep after deletion.
func PruneBackups(ctx context.Context, driver ContainerRemover, cfg PruneConfig, now time.Time, dryRun bool) PruneResult {
	all, err := driver.List(ctx)
	if err != nil {
		return PruneResult{Errors: []error{err}}
	}

	byBase := map[string][]backupCandidate{}
	for _, c := range all {
		if c.State != model.StateExited {
			continue
		}
		m := backupNamePattern.FindStringSubmatch(c.Name)
		if m == nil {
			continue
		}
		// BackupName stamps local time (§6); parse in the same location so
		// age comparisons against now aren't skewed by the local offset.
		parsedAt, err := time.ParseInLocation("20060102_150405", m[2], time.Local)
		if err != nil {
			continue
		}
		byBase[m[1]] = append(byBase[m[1]], backupCandidate{container: c, createdAt: parsedAt})
	}

	var result PruneResult
	for _, candidates := range byBase {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].createdAt.Before(candidates[j].createdAt)
		})

		retained := len(candidates)
		for _, cand := range candidates {
			age := now.Sub(cand.createdAt)
			if age < cfg.MinBackupAge {
				continue
			}
			if retained <= cfg.MinBackupsToKeep {
				break
			}
			if !dryRun {
				if err := driver.Remove(ctx, cand.container.ID, false); err != nil {
					result.Errors = append(result.Errors, err)
					continue
				}
			}
			result.RemovedContainers = append(result.RemovedContainers, cand.container.Name)
			retained--
		}
	}
	return result
}

type backupCandidate struct {
	container model.Container
	createdAt time.Time
}

// ImagePruner is the narrow seam for removing images no longer referenced
// by any container, delegated to the daemon's own prune where possible.
type ImagePruner interface {
	PruneImages(ctx context.Context) error
}
