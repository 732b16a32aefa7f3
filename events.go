package mt_migrator

import (
	"context"

	"github.com/joomcode/errorx"
)

type Event string

const (
	BeforeClean       Event = "beforeClean"
	AfterClean        Event = "afterClean"
	BeforeValidate    Event = "beforeValidate"
	AfterValidate     Event = "afterValidate"
	BeforeBaseline    Event = "beforeBaseline"
	AfterBaseline     Event = "afterBaseline"
	BeforeRepair      Event = "beforeRepair"
	AfterRepair       Event = "afterRepair"
	BeforeMigrate     Event = "beforeMigrate"
	BeforeEachMigrate Event = "beforeEachMigrate"
	AfterEachMigrate  Event = "afterEachMigrate"
	AfterMigrate      Event = "afterMigrate"
	AfterMigrateError Event = "afterMigrateError"
)

// CallbackContext describes where a lifecycle event happened.
type CallbackContext struct {
	Target    Target
	Version   string
	Statement string
}

// Callback is a hook the engines invoke at lifecycle events.
type Callback interface {
	Supports(event Event) bool
	Handle(ctx context.Context, event Event, cctx CallbackContext) error
}

// InvokeCallbacks runs every callback supporting event, in order, and stops at the first error.
func InvokeCallbacks(ctx context.Context, callbacks []Callback, event Event, cctx CallbackContext) error {
	for _, cb := range callbacks {
		if !cb.Supports(event) {
			continue
		}
		if err := cb.Handle(ctx, event, cctx); err != nil {
			return errorx.Decorate(err, "callback failed on %s for %s", event, cctx.Target)
		}
	}
	return nil
}
