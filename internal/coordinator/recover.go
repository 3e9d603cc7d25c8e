package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"famforge/internal/family"
	"famforge/internal/queue"
)

// Recovery reports what RequeueActive did.
type Recovery struct {
	Requeued map[queue.List][]string
	// Stranded lists pending families that cannot be polled: their
	// alignment never finished or their record is unreadable.
	Stranded []string
}

// Count returns the number of requeued families.
func (r Recovery) Count() int {
	n := 0
	for _, ids := range r.Requeued {
		n += len(ids)
	}
	return n
}

// listForStage maps a pending family's stage to the work list that polls it.
func listForStage(stage family.Stage) (queue.List, bool) {
	switch stage {
	case family.StageLiftover:
		return queue.LiftoverIn, true
	case family.StageBuild, family.StagePostProcess:
		return queue.LiftoverDone, true
	default:
		return "", false
	}
}

// RequeueActive pushes every pending family in the active root onto the list
// for the stage its record names, unless the family is already queued. The
// records are the source of truth; the lists only schedule polls.
func RequeueActive(ctx context.Context, store *queue.Store, layout *family.Layout) (Recovery, error) {
	recovery := Recovery{Requeued: make(map[queue.List][]string)}

	queued := make(map[string]bool)
	for _, list := range queue.Lists() {
		entries, err := store.Entries(ctx, list)
		if err != nil {
			return recovery, err
		}
		for _, entry := range entries {
			queued[entry.Family] = true
		}
	}

	ids, err := layout.List(family.Pending)
	if err != nil {
		return recovery, fmt.Errorf("list active families: %w", err)
	}
	for _, id := range ids {
		if queued[id] {
			continue
		}
		rec, err := family.ReadRecord(layout.ActiveDir(id))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			recovery.Stranded = append(recovery.Stranded, id)
			continue
		}
		if rec.Disposition != family.Pending {
			continue
		}
		list, ok := listForStage(rec.Stage)
		if !ok {
			recovery.Stranded = append(recovery.Stranded, id)
			continue
		}
		if _, err := store.PushTail(ctx, list, id); err != nil {
			return recovery, err
		}
		recovery.Requeued[list] = append(recovery.Requeued[list], id)
	}
	return recovery, nil
}
