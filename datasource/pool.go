// Package datasource opens the named connection pools migrations run against.
package datasource

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	mt "github.com/Maksumys/mt-migrator"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Config describes one named data source.
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// Active defaults to true.
	Active          *bool         `mapstructure:"active"`
	MaxOpenConns    int           `mapstructure:"max-open-conns"`
	MaxIdleConns    int           `mapstructure:"max-idle-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
}

func (c Config) active() bool {
	return c.Active == nil || *c.Active
}

// Pool opens each configured data source on first use and keeps it open until Close.
type Pool struct {
	logger  logrus.FieldLogger
	configs map[string]Config

	mutex sync.Mutex
	open  map[string]*mt.DataSource
}

func NewPool(configs map[string]Config, logger logrus.FieldLogger) *Pool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	copied := make(map[string]Config, len(configs))
	for name, config := range configs {
		copied[name] = config
	}
	return &Pool{
		logger:  logger,
		configs: copied,
		open:    make(map[string]*mt.DataSource),
	}
}

// DataSource returns the pool of name, opening it if needed. sql.Open does not
// connect, so no connection is made here.
func (p *Pool) DataSource(name string) (*mt.DataSource, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if ds, ok := p.open[name]; ok {
		return ds, nil
	}

	config, ok := p.configs[name]
	if !ok {
		return nil, mt.DataSourceNotConfigured.New("data source %s is not configured", name)
	}
	if config.Driver == "" || config.DSN == "" {
		return nil, mt.DataSourceNotConfigured.New("data source %s has no driver or dsn", name)
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, errorx.Decorate(err, "unable to open data source %s", name)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ds := &mt.DataSource{Name: name, Driver: config.Driver, DB: db}
	p.open[name] = ds
	p.logger.WithFields(logrus.Fields{
		"data_source": name,
		"driver":      config.Driver,
	}).Debug("data source opened")
	return ds, nil
}

// ActiveDataSourceNames lists the configured data sources not marked inactive, sorted.
func (p *Pool) ActiveDataSourceNames() []string {
	names := make([]string, 0, len(p.configs))
	for name, config := range p.configs {
		if config.active() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Close closes every opened data source and reports the first failure.
func (p *Pool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var first error
	for name, ds := range p.open {
		if err := ds.DB.Close(); err != nil && first == nil {
			first = errorx.Decorate(err, "unable to close data source %s", name)
		}
		delete(p.open, name)
	}
	return first
}
