package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocelot-cloud/captn-updater/internal/containerdriver"
	"github.com/ocelot-cloud/captn-updater/internal/model"
)

type fakeRemover struct {
	containers []model.Container
	removed    []string
}

func (f *fakeRemover) List(ctx context.Context) ([]model.Container, error) {
	return f.containers, nil
}

func (f *fakeRemover) Remove(ctx context.Context, containerID string, force bool) error {
	f.removed = append(f.removed, containerID)
	return nil
}

func backup(name string, id string, at time.Time) model.Container {
	return model.Container{ID: id, Name: containerdriver.BackupName(name, at), State: model.StateExited}
}

func TestPruneBackupsSkipsTooYoung(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	remover := &fakeRemover{containers: []model.Container{
		backup("web", "c1", now.Add(-1*time.Hour)),
	}}
	cfg := PruneConfig{MinBackupAge: 24 * time.Hour, MinBackupsToKeep: 0}

	result := PruneBackups(context.Background(), remover, cfg, now, false)
	assert.Empty(t, result.RemovedContainers)
}

func TestPruneBackupsKeepsMinimumCount(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	remover := &fakeRemover{containers: []model.Container{
		backup("web", "c1", now.Add(-72*time.Hour)),
		backup("web", "c2", now.Add(-48*time.Hour)),
	}}
	cfg := PruneConfig{MinBackupAge: time.Hour, MinBackupsToKeep: 1}

	result := PruneBackups(context.Background(), remover, cfg, now, false)
	require.Len(t, result.RemovedContainers, 1)
	assert.Equal(t, containerdriver.BackupName("web", now.Add(-72*time.Hour)), result.RemovedContainers[0])
}

func TestPruneBackupsIgnoresRunningContainers(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	running := backup("web", "c1", now.Add(-72*time.Hour))
	running.State = model.StateRunning
	remover := &fakeRemover{containers: []model.Container{running}}
	cfg := PruneConfig{MinBackupAge: time.Hour, MinBackupsToKeep: 0}

	result := PruneBackups(context.Background(), remover, cfg, now, false)
	assert.Empty(t, result.RemovedContainers)
}

func TestPruneBackupsIgnoresNonBackupNames(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	remover := &fakeRemover{containers: []model.Container{
		{ID: "c1", Name: "web", State: model.StateExited},
	}}
	cfg := PruneConfig{MinBackupAge: 0, MinBackupsToKeep: 0}

	result := PruneBackups(context.Background(), remover, cfg, now, false)
	assert.Empty(t, result.RemovedContainers)
}

func TestPruneBackupsDryRunDoesNotCallRemove(t *testing.T) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	remover := &fakeRemover{containers: []model.Container{
		backup("web", "c1", now.Add(-72*time.Hour)),
	}}
	cfg := PruneConfig{MinBackupAge: time.Hour, MinBackupsToKeep: 0}

	result := PruneBackups(context.Background(), remover, cfg, now, true)
	require.Len(t, result.RemovedContainers, 1)
	assert.Empty(t, remover.removed)
}
