package executor

import (
	"context"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/model"
)

// restoreOld undoes a rename+stop attempt when no replacement container
// has been created yet (STOP_OLD failed before START_NEW was reached).
func (e *Executor) restoreOld(ctx context.Context, old model.Container, backupName string) {
	_ = e.Driver.Rename(ctx, old.ID, old.Name)
	_ = e.Driver.SetRestartPolicy(ctx, old.ID, old.RestartPolicy)
	_ = e.Driver.Start(ctx, old.ID)
}

// rollback implements §4.10's ROLLBACK state: stop+remove the new
// container (if one was created), rename the backup back to the
// original name, restore its original restart policy, and start it.
// Every step's error is discarded; nothing is returned or logged, so a
// step that fails (for example the rename) goes unreported. The
// restored container is not re-verified. Hook scripts are never re-run
// on rollback.
func (e *Executor) rollback(ctx context.Context, newID string, old model.Container, backupName string) {
	if newID != "" {
		_ = e.Driver.Stop(ctx, newID, 5*time.Second)
		_ = e.Driver.Remove(ctx, newID, true)
	}
	_ = e.Driver.Rename(ctx, old.ID, old.Name)
	// Restore the original restart policy overridden by STOP_OLD (§4.10
	// step 9) before starting it back up.
	_ = e.Driver.SetRestartPolicy(ctx, old.ID, old.RestartPolicy)
	_ = e.Driver.Start(ctx, old.ID)
}
