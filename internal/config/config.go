package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/AksharDP/modhub/pkg/objectstore"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName     string `mapstructure:"app_name" default:"modhub"`
	Env         string `mapstructure:"app_env" default:"development" validate:"oneof=development production test"`
	Port        string `mapstructure:"port" default:"8080"`
	AppURL      string `mapstructure:"app_url" default:"http://localhost:3000" validate:"url"`
	CORSOrigins string `mapstructure:"cors_origins" default:"*"`
	LogLevel    string `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogDir      string `mapstructure:"log_dir"`

	DBDriver          string        `mapstructure:"db_driver" default:"postgres" validate:"oneof=postgres sqlite"`
	DBHost            string        `mapstructure:"db_host" default:"localhost"`
	DBPort            int           `mapstructure:"db_port" default:"5432"`
	DBUser            string        `mapstructure:"db_user" default:"postgres"`
	DBPassword        string        `mapstructure:"db_pass"`
	DBName            string        `mapstructure:"db_name" default:"modhub"`
	DBSSLMode         string        `mapstructure:"db_sslmode" default:"disable"`
	SQLitePath        string        `mapstructure:"sqlite_path" default:"modhub.db"`
	DBMaxOpenConns    int           `mapstructure:"db_max_open_conns" default:"25" validate:"gte=1"`
	DBMaxIdleConns    int           `mapstructure:"db_max_idle_conns" default:"5" validate:"gte=0"`
	DBConnMaxLifetime time.Duration `mapstructure:"db_conn_max_lifetime" default:"30m"`

	RedisAddr     string `mapstructure:"redis_addr" default:"localhost:6379" validate:"required"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" default:"0"`

	JWTSecret       string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl" default:"15m"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" default:"168h"`

	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3Region       string `mapstructure:"s3_region" default:"us-east-1"`
	S3Bucket       string `mapstructure:"s3_bucket" validate:"required"`
	S3AccessKey    string `mapstructure:"s3_access_key"`
	S3SecretKey    string `mapstructure:"s3_secret_key"`
	S3PublicURL    string `mapstructure:"s3_public_url"`
	S3UsePathStyle bool   `mapstructure:"s3_use_path_style" default:"true"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port" default:"587"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	MailFrom     string `mapstructure:"mail_from" default:"no-reply@modhub.local"`

	RateLimitMax    int           `mapstructure:"rate_limit_max" default:"120" validate:"gte=1"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" default:"1m"`

	PendingUploadTTL   time.Duration `mapstructure:"pending_upload_ttl" default:"24h"`
	CleanupSchedule    string        `mapstructure:"cleanup_schedule" default:"@every 1h"`
	SizeRepairSchedule string        `mapstructure:"size_repair_schedule" default:"@daily"`
}

// LoadConfig reads configuration from struct defaults, an optional .env file and an
// optional config file. Environment variables win over the config file.
func LoadConfig(envFile, configFile string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply config defaults")
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to read %s", envFile)
	}

	v := viper.New()
	v.AutomaticEnv()
	bindKeys(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if verr := utils.NewValidator().Validate(cfg); verr != nil {
		return nil, errors.Wrap(verr, "invalid config")
	}

	return cfg, nil
}

// bindKeys registers every mapstructure key with its default so AutomaticEnv picks it up.
func bindKeys(v *viper.Viper, cfg *Config) {
	rv := reflect.ValueOf(cfg).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		v.SetDefault(key, rv.Field(i).Interface())
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

// PostgresDSN builds the connection string for gorm.io/driver/postgres.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Email() utils.EmailConfig {
	return utils.EmailConfig{
		SMTPHost:     c.SMTPHost,
		SMTPPort:     c.SMTPPort,
		SMTPUsername: c.SMTPUsername,
		SMTPPassword: c.SMTPPassword,
		AppURL:       c.AppURL,
		FromEmail:    c.MailFrom,
	}
}

func (c *Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:      c.S3Endpoint,
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		PublicBaseURL: c.S3PublicURL,
		UsePathStyle:  c.S3UsePathStyle,
	}
}
