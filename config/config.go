// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	CreateAdmin = pflag.Bool("create-admin", false, "Creates the admin account from the admin.* settings and exits")

	validLogLevels     = []string{"debug", "info", "warn", "error", "fatal"}
	validDatabaseTypes = []string{"sqlite", "postgres"}
	validHashers       = []string{"argon2id", "bcrypt"}
	validLimiterStores = []string{"memory", "redis"}
)

type Config struct {
	App       App       `mapstructure:"app"`
	Host      Host      `mapstructure:"host"`
	Database  Database  `mapstructure:"database"`
	JWT       JWT       `mapstructure:"jwt"`
	OTP       OTP       `mapstructure:"otp"`
	Mail      Mail      `mapstructure:"mail"`
	Security  Security  `mapstructure:"security"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
	Redis     Redis     `mapstructure:"redis"`
	Timeouts  Timeouts  `mapstructure:"timeouts"`
	Cleanup   Cleanup   `mapstructure:"cleanup"`
	Admin     Admin     `mapstructure:"admin"`
}

type App struct {
	LogLevel string `mapstructure:"log_level"`
}

type Host struct {
	Port int      `mapstructure:"port"`
	CORS []string `mapstructure:"cors"`
	// TrustedProxies lists the proxy addresses allowed to set X-Forwarded-For.
	// Empty means the socket address is the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type Database struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type JWT struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
}

type OTP struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Length int           `mapstructure:"length"`
}

type Mail struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"`
	AppName  string `mapstructure:"app_name"`
}

type Security struct {
	PasswordHasher string `mapstructure:"password_hasher"`
	BcryptCost     int    `mapstructure:"bcrypt_cost"`
}

type RateLimit struct {
	Store             string        `mapstructure:"store"`
	LoginMax          int64         `mapstructure:"login_max"`
	LoginWindow       time.Duration `mapstructure:"login_window"`
	OTPMax            int64         `mapstructure:"otp_max"`
	OTPWindow         time.Duration `mapstructure:"otp_window"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Timeouts struct {
	Store time.Duration `mapstructure:"store"`
	Mail  time.Duration `mapstructure:"mail"`
}

type Cleanup struct {
	TokensEvery   time.Duration `mapstructure:"tokens_every"`
	AccountsEvery time.Duration `mapstructure:"accounts_every"`
	UnverifiedTTL time.Duration `mapstructure:"unverified_ttl"`
}

type Admin struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() (*Config, error) {
	pflag.Parse()

	v := viper.GetViper()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: config.toml file is missing, only environment variables will be used")
	}

	bindEnvs(v)

	if v.GetString("jwt.access_secret") == "" || v.GetString("jwt.refresh_secret") == "" {
		fmt.Println("WARNING: You haven't set the JWT secrets, so they have been generated for you. Please set them as environment variables or in the config.toml file.\nAccess secret:\n\n" + genSecret() + "\n\nRefresh secret:\n\n" + genSecret() + "\n\nPaste them into your config.toml file.")
		os.Exit(0)
	}

	return Load(v)
}

// Load applies defaults and environment bindings to v, decodes it and
// validates the result
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnvs(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors", []string{"http://localhost:3000"})
	v.SetDefault("host.trusted_proxies", []string{})

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "database.db")

	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("otp.ttl", 10*time.Minute)
	v.SetDefault("otp.length", 6)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.app_name", "FollowPro")

	v.SetDefault("security.password_hasher", "argon2id")
	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.login_max", 5)
	v.SetDefault("ratelimit.login_window", 15*time.Minute)
	v.SetDefault("ratelimit.otp_max", 3)
	v.SetDefault("ratelimit.otp_window", time.Minute)
	v.SetDefault("ratelimit.requests_per_second", 20)

	v.SetDefault("timeouts.store", 5*time.Second)
	v.SetDefault("timeouts.mail", 15*time.Second)

	v.SetDefault("cleanup.tokens_every", time.Hour)
	v.SetDefault("cleanup.accounts_every", 24*time.Hour)
	v.SetDefault("cleanup.unverified_ttl", 7*24*time.Hour)

	v.SetDefault("admin.name", "System Admin")
}

// envKeys are the settings that can be overridden from the environment. The
// variable name is the key upper-cased with dots turned into underscores,
// e.g. JWT_ACCESS_SECRET.
var envKeys = []string{
	"app.log_level",

	"host.port",
	"host.cors",
	"host.trusted_proxies",

	"database.type",
	"database.path",
	"database.dsn",

	"jwt.access_secret",
	"jwt.refresh_secret",
	"jwt.access_ttl",
	"jwt.refresh_ttl",

	"otp.ttl",
	"otp.length",

	"mail.enabled",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.sender",
	"mail.app_name",

	"security.password_hasher",
	"security.bcrypt_cost",

	"ratelimit.store",
	"ratelimit.login_max",
	"ratelimit.login_window",
	"ratelimit.otp_max",
	"ratelimit.otp_window",
	"ratelimit.requests_per_second",

	"redis.addr",
	"redis.password",
	"redis.db",

	"timeouts.store",
	"timeouts.mail",

	"cleanup.tokens_every",
	"cleanup.accounts_every",
	"cleanup.unverified_ttl",

	"admin.email",
	"admin.password",
	"admin.name",
}

func bindEnvs(v *viper.Viper) {
	for _, key := range envKeys {
		v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

func (c *Config) validate() error {
	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return errors.New("invalid log level provided")
	}

	if c.Host.Port <= 0 {
		return errors.New("invalid port provided")
	}

	for _, p := range c.Host.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", p)
			}
		}
	}

	if len(c.Host.CORS) == 0 {
		zap.L().Warn("No host.cors origins specified, browsers won't be able to call the API")
	}

	if !slices.Contains(validDatabaseTypes, c.Database.Type) {
		return errors.New("invalid database type provided")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path can't be empty")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn can't be empty")
		}
	}

	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("both jwt.access_secret and jwt.refresh_secret must be set")
	}

	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("jwt.access_secret and jwt.refresh_secret must differ")
	}

	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt ttl values must be bigger than 0")
	}

	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("jwt.access_ttl must be shorter than jwt.refresh_ttl")
	}

	if c.OTP.TTL <= 0 {
		return errors.New("otp.ttl must be bigger than 0")
	}

	if c.OTP.Length < 4 || c.OTP.Length > 12 {
		return errors.New("otp.length must be between 4 and 12")
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return errors.New("mail.host can't be empty")
		}
		if c.Mail.Port <= 0 {
			return errors.New("invalid mail.port provided")
		}
		if c.Mail.Sender == "" {
			return errors.New("mail.sender can't be empty")
		}
	} else {
		fmt.Println("[WARNING]: Mail delivery is disabled. One-time codes will only be written to the log")
	}

	if !slices.Contains(validHashers, c.Security.PasswordHasher) {
		return errors.New("invalid password hasher provided")
	}

	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return errors.New("security.bcrypt_cost must be between 4 and 31")
	}

	if !slices.Contains(validLimiterStores, c.RateLimit.Store) {
		return errors.New("invalid rate limit store provided")
	}

	if c.RateLimit.Store == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr can't be empty when ratelimit.store is redis")
	}

	if c.RateLimit.LoginMax <= 0 || c.RateLimit.OTPMax <= 0 {
		return errors.New("rate limit maximums must be bigger than 0")
	}

	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.OTPWindow <= 0 {
		return errors.New("rate limit windows must be bigger than 0")
	}

	if c.Timeouts.Store <= 0 || c.Timeouts.Mail <= 0 {
		return errors.New("timeouts must be bigger than 0")
	}

	if c.Cleanup.TokensEvery <= 0 || c.Cleanup.AccountsEvery <= 0 {
		return errors.New("cleanup intervals must be bigger than 0")
	}

	return nil
}
