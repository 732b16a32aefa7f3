package config

import (
	"strings"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/Maksumys/mt-migrator/datasource"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "MT_MIGRATOR"

	EngineGorm    = "gorm"
	EngineMigrate = "migrate"
)

// Settings is the configuration of the mt-migrator command.
type Settings struct {
	Log    LogConfig `mapstructure:"log"`
	Engine string    `mapstructure:"engine"`
	// ResourceRoots are the directories migration locations are resolved against.
	ResourceRoots []string                     `mapstructure:"resource-roots"`
	Migrations    mt.Config                    `mapstructure:"migrations"`
	DataSources   map[string]datasource.Config `mapstructure:"data-sources"`
	// Tenants lists the tenants initialized at startup per multi-tenant unit.
	Tenants map[string][]string `mapstructure:"tenants"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the YAML file at path. Every key can be overridden from the
// environment, e.g. MT_MIGRATOR_ENGINE or MT_MIGRATOR_LOG_LEVEL.
// Keys are case-insensitive, so unit names are lower-cased.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("engine", EngineGorm)
	v.SetDefault("log.level", logrus.InfoLevel.String())
	v.SetDefault("log.format", "text")
	v.SetDefault("resource-roots", []string{"."})

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, NotFoundError.Wrap(err, "failed to read config file: %s", path).
			WithProperty(errorx.PropertyPayload(), path)
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, errorx.IllegalFormat.Wrap(err, "failed to parse configuration").
			WithProperty(errorx.PropertyPayload(), path)
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s Settings) Validate() error {
	switch s.Engine {
	case EngineGorm, EngineMigrate:
	default:
		return errorx.IllegalArgument.New("unknown engine %q, expected %s or %s", s.Engine, EngineGorm, EngineMigrate)
	}
	if _, err := logrus.ParseLevel(s.Log.Level); err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid log level: %s", s.Log.Level)
	}
	return nil
}

// Logger builds the logrus logger described by the log section.
func (s Settings) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(s.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if s.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// TenantSupport exposes the tenant lists as one TenantSupport per unit.
func (s Settings) TenantSupport() map[string]mt.TenantSupport {
	result := make(map[string]mt.TenantSupport, len(s.Tenants))
	for unit, tenants := range s.Tenants {
		tenants := append([]string(nil), tenants...)
		result[unit] = mt.TenantSupportFunc(func() []string {
			return tenants
		})
	}
	return result
}
