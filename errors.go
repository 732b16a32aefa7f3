package mt_migrator

import "github.com/joomcode/errorx"

var (
	ErrNamespace = errorx.NewNamespace("migrator")

	// ConfigurationError aborts startup: bad locations, broken callback declarations,
	// unqualified runner requests for multi-tenant units.
	ConfigurationError = ErrNamespace.NewType("configuration")

	// DataSourceNotConfigured is reported by a DataSourceProvider for unknown names.
	DataSourceNotConfigured = ErrNamespace.NewType("data_source_not_configured", errorx.NotFound())

	// UnconfiguredAccess is returned when the runner of an unconfigured container is requested.
	UnconfiguredAccess = ErrNamespace.NewType("unconfigured_access")

	ValidationFailed = ErrNamespace.NewType("validation_failed")
	CleanDisabled    = ErrNamespace.NewType("clean_disabled")
)

var ResourceNotFound = ErrNamespace.NewType("resource_not_found", errorx.NotFound())
