package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	JobService JobServiceConfig `mapstructure:"job_service"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Panels     PanelsConfig     `mapstructure:"panels"`
	Cron       CronConfig       `mapstructure:"cron"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	PaaS       PaaSConfig       `mapstructure:"paas"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// JobServiceConfig points at the backend that actually runs sync jobs.
type JobServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TrackerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type PanelsConfig struct {
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
	ReapSpec    string        `mapstructure:"reap_spec"`
	EventBuffer int           `mapstructure:"event_buffer"`
}

type CronConfig struct {
	Enabled   bool               `mapstructure:"enabled"`
	Schedules []SyncScheduleSpec `mapstructure:"schedules"`
}

// SyncScheduleSpec launches Kind/Mode on every tick of Spec (seconds-enabled cron syntax).
type SyncScheduleSpec struct {
	Name string `mapstructure:"name"`
	Spec string `mapstructure:"spec"`
	Kind string `mapstructure:"kind"`
	Mode string `mapstructure:"mode"`
}

type NotifyConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	Project        string        `mapstructure:"project"`
}

// PaaSConfig connects the service to the easyweb3 platform. The client is
// only built when both BaseURL and APIKey are set.
type PaaSConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Agent          string `mapstructure:"agent"`
	AuthDisabled   bool   `mapstructure:"auth_disabled"`
	RequireGateway bool   `mapstructure:"require_gateway"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.enabled", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("job_service.base_url", "http://localhost:8000")
	v.SetDefault("job_service.api_key", "")
	v.SetDefault("job_service.timeout", "15s")

	// Early builds polled every 2s; the dashboard settled on 30s.
	v.SetDefault("tracker.poll_interval", "30s")

	v.SetDefault("panels.idle_ttl", "30m")
	v.SetDefault("panels.reap_spec", "@every 1m")
	v.SetDefault("panels.event_buffer", 32)
	v.SetDefault("cron.enabled", false)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_timeout", "5s")
	v.SetDefault("notify.project", "syncpanel")
	v.SetDefault("paas.base_url", "")
	v.SetDefault("paas.api_key", "")
	v.SetDefault("paas.agent", "syncpanel-service")
	v.SetDefault("paas.auth_disabled", false)
	v.SetDefault("paas.require_gateway", false)
	// Platform-wide variable names injected by the PaaS runtime.
	_ = v.BindEnv("paas.base_url", "SP_PAAS_BASE_URL", "EASYWEB3_API_BASE")
	_ = v.BindEnv("paas.api_key", "SP_PAAS_API_KEY", "EASYWEB3_API_KEY")
	_ = v.BindEnv("paas.auth_disabled", "SP_PAAS_AUTH_DISABLED", "SP_AUTH_DISABLED")
	_ = v.BindEnv("paas.require_gateway", "SP_PAAS_REQUIRE_GATEWAY", "SP_REQUIRE_GATEWAY")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
