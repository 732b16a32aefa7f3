package mt_migrator

import (
	"container/list"
	"context"
	"slices"

	"github.com/sirupsen/logrus"
)

type StartAction string

const (
	ActionClean    StartAction = "clean"
	ActionValidate StartAction = "validate"
	ActionBaseline StartAction = "baseline"
	ActionRepair   StartAction = "repair"
	ActionMigrate  StartAction = "migrate"
)

type actionsPlan struct {
	actionsToRun *list.List
}

func newActionsPlan() actionsPlan {
	return actionsPlan{
		actionsToRun: list.New(),
	}
}

func (p actionsPlan) IsEmpty() bool {
	return p.actionsToRun.Len() == 0
}

func (p actionsPlan) PopFirst() StartAction {
	first := p.actionsToRun.Front()
	p.actionsToRun.Remove(first)
	return first.Value.(StartAction)
}

// planStartActions lays out the enabled actions in their fixed order.
func planStartActions(c *Container) actionsPlan {
	plan := newActionsPlan()
	if c.CleanAtStart() {
		plan.actionsToRun.PushBack(ActionClean)
	}
	if c.ValidateAtStart() {
		plan.actionsToRun.PushBack(ActionValidate)
	}
	if c.BaselineAtStart() {
		plan.actionsToRun.PushBack(ActionBaseline)
	}
	if c.RepairAtStart() {
		plan.actionsToRun.PushBack(ActionRepair)
	}
	if c.MigrateAtStart() {
		plan.actionsToRun.PushBack(ActionMigrate)
	}
	return plan
}

// Sequencer runs the start actions of a unit against the containers of its targets.
type Sequencer struct {
	registry    *ContainerRegistry
	config      Config
	dataSources DataSourceProvider
	tenants     map[string]TenantSupport
	logger      logrus.FieldLogger
}

func NewSequencer(
	registry *ContainerRegistry,
	config Config,
	dataSources DataSourceProvider,
	tenants map[string]TenantSupport,
	logger logrus.FieldLogger,
) *Sequencer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sequencer{
		registry:    registry,
		config:      config,
		dataSources: dataSources,
		tenants:     tenants,
		logger:      logger,
	}
}

// StartActions runs clean, validate, baseline, repair and migrate, as enabled, for unit.
// Inactive and unconfigured units are skipped silently. Multi-tenant units run once per
// tenant listed by their TenantSupport. The first engine error is returned unchanged.
func (s *Sequencer) StartActions(ctx context.Context, unit string) error {
	unit = canonicalUnit(unit)
	runtime, build := s.config.Resolve(unit)
	logger := s.logger.WithField("unit", unit)

	if !s.active(runtime, build.DataSourceName(unit)) {
		logger.Debug("migrations inactive, skipping start actions")
		return nil
	}

	if !build.MultiTenant {
		container, err := s.registry.GetOrCreate(ctx, UnitTarget(unit))
		if err != nil {
			return err
		}
		if container.Unconfigured() {
			logger.Debug(container.Diagnostic())
			return nil
		}
		return s.run(ctx, container)
	}

	support, ok := s.tenants[unit]
	if !ok || support == nil {
		logger.Debug("no tenant support registered for multi-tenant unit, skipping start actions")
		return nil
	}
	tenants := support.TenantsToInitialize()
	if len(tenants) == 0 {
		logger.Debug("no tenants to initialize, skipping start actions")
		return nil
	}

	for _, tenant := range tenants {
		if tenant == "" {
			logger.Warn("ignoring blank tenant identifier")
			continue
		}
		container, err := s.registry.GetOrCreate(ctx, TenantTarget(unit, tenant))
		if err != nil {
			return err
		}
		if container.Unconfigured() {
			logger.Debug(container.Diagnostic())
			return nil
		}
		if err := s.run(ctx, container); err != nil {
			return err
		}
	}
	return nil
}

// active defers to an explicit override, then to the data source's own state.
func (s *Sequencer) active(runtime RuntimeConfig, dataSourceName string) bool {
	if runtime.Active != nil {
		return *runtime.Active
	}
	if s.dataSources == nil {
		return false
	}
	return slices.Contains(s.dataSources.ActiveDataSourceNames(), dataSourceName)
}

func (s *Sequencer) run(ctx context.Context, container *Container) error {
	runner, err := container.Runner()
	if err != nil {
		return err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"unit":   container.Target().Unit,
		"tenant": container.Target().Tenant,
	})

	plan := planStartActions(container)
	for !plan.IsEmpty() {
		action := plan.PopFirst()
		logger.WithField("action", action).Info("running start action")

		switch action {
		case ActionClean:
			err = runner.Clean(ctx)
		case ActionValidate:
			err = runner.Validate(ctx)
		case ActionBaseline:
			var exists bool
			exists, err = runner.HistoryExists(ctx)
			if err == nil && exists {
				logger.Debug("migration history already present, baseline skipped")
				continue
			}
			if err == nil {
				err = runner.Baseline(ctx)
			}
		case ActionRepair:
			err = runner.Repair(ctx)
		case ActionMigrate:
			err = runner.Migrate(ctx)
		}

		if err != nil {
			logger.WithError(err).WithField("action", action).Error("start action failed")
			return err
		}
	}
	return nil
}
