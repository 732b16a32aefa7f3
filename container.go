package mt_migrator

// Container holds a configured runner for one target together with the start
// actions resolved for it. It never changes after construction.
type Container struct {
	target         Target
	runner         Runner
	dataSource     *DataSource
	dataSourceName string

	baselineAtStart bool
	cleanAtStart    bool
	migrateAtStart  bool
	repairAtStart   bool
	validateAtStart bool

	multiTenancyEnabled bool
	hasMigrations       bool
	createPossible      bool

	unconfigured *unconfiguredState
}

type unconfiguredState struct {
	message string
	cause   error
}

// newUnconfiguredContainer returns the placeholder for a target whose data source could not be resolved.
func newUnconfiguredContainer(target Target, dataSourceName, message string, cause error) *Container {
	return &Container{
		target:         target,
		dataSourceName: dataSourceName,
		unconfigured:   &unconfiguredState{message: message, cause: cause},
	}
}

// Runner returns the migration runner. It fails with UnconfiguredAccess when the
// container's data source could not be resolved.
func (c *Container) Runner() (Runner, error) {
	if c.unconfigured != nil {
		return nil, UnconfiguredAccess.Wrap(c.unconfigured.cause, "%s", c.unconfigured.message)
	}
	return c.runner, nil
}

func (c *Container) Unconfigured() bool {
	return c.unconfigured != nil
}

// Diagnostic explains why the container is unconfigured; it is empty otherwise.
func (c *Container) Diagnostic() string {
	if c.unconfigured == nil {
		return ""
	}
	return c.unconfigured.message
}

func (c *Container) Target() Target            { return c.target }
func (c *Container) DataSource() *DataSource   { return c.dataSource }
func (c *Container) DataSourceName() string    { return c.dataSourceName }
func (c *Container) BaselineAtStart() bool     { return c.baselineAtStart }
func (c *Container) CleanAtStart() bool        { return c.cleanAtStart }
func (c *Container) MigrateAtStart() bool      { return c.migrateAtStart }
func (c *Container) RepairAtStart() bool       { return c.repairAtStart }
func (c *Container) ValidateAtStart() bool     { return c.validateAtStart }
func (c *Container) MultiTenancyEnabled() bool { return c.multiTenancyEnabled }
func (c *Container) HasMigrations() bool       { return c.hasMigrations }
func (c *Container) CreatePossible() bool      { return c.createPossible }

// Id is a stable identifier derived from the unit and tenant.
func (c *Container) Id() string {
	tenant := c.target.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}
	return containerID(c.target.Unit, tenant)
}
