package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followpro/api/config"
	"followpro/api/db"
	"followpro/api/internal/ratelimit"
	"followpro/api/internal/service"
	"followpro/api/internal/store"
	"followpro/api/pkg/middleware"
	"followpro/api/pkg/security"

	"github.com/chenyahui/gin-cache/persist"
	redisv8 "github.com/go-redis/redis/v8"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Limits holds the per-route fixed window limiters
type Limits struct {
	Login *ratelimit.Limiter
	OTP   *ratelimit.Limiter
}

type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Store    store.Store
	Hasher   *security.Hasher
	Tokens   *security.TokenIssuer
	Auth     service.Authenticator
	Users    *service.UserService
	Cleaner  *service.Cleaner
	Limits   Limits
	Throttle *middleware.Throttle
	Cache    persist.CacheStore
	Redis    *redis.Client

	memLimits *ratelimit.MemoryStore
	// gin-cache only speaks go-redis v8
	cacheRedis *redisv8.Client
}

// NewDeps connects to every backing service described by c. On error
// everything opened so far is closed again.
func NewDeps(c *config.Config) (*Deps, error) {
	d := &Deps{Config: c}

	if err := d.connect(c); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Deps) connect(c *config.Config) (err error) {
	d.DB, err = db.New(c.Database, c.App.LogLevel)
	if err != nil {
		return err
	}
	d.Store = store.NewGormStore(d.DB)

	d.Hasher, err = security.NewHasher(c.Security.PasswordHasher, security.NewArgon(), security.NewBcrypt(c.Security.BcryptCost))
	if err != nil {
		return err
	}

	d.Tokens, err = security.NewTokenIssuer(&security.TokenIssuerOpts{
		AccessSecret:  []byte(c.JWT.AccessSecret),
		RefreshSecret: []byte(c.JWT.RefreshSecret),
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}

	var notifier service.Notifier = service.LogNotifier{}
	if c.Mail.Enabled {
		notifier = service.NewMailer(c.Mail, c.OTP.TTL)
	}

	d.Auth, err = service.NewAuthService(&service.AuthServiceOpts{
		Store:         d.Store,
		Hasher:        d.Hasher,
		Tokens:        d.Tokens,
		OTP:           service.NewOTPEngine(c.OTP.TTL, c.OTP.Length, nil),
		Notifier:      notifier,
		StoreTimeout:  c.Timeouts.Store,
		MailTimeout:   c.Timeouts.Mail,
		UnverifiedTTL: c.Cleanup.UnverifiedTTL,
	})
	if err != nil {
		return err
	}

	d.Users = service.NewUserService(d.Store, d.Hasher, c.Timeouts.Store)
	d.Cleaner = service.NewCleaner(d.Store, c.Timeouts.Store, nil)

	if c.Redis.Addr != "" {
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), c.Timeouts.Store)
		defer cancel()

		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis, %w", err)
		}
	}

	var limitStore ratelimit.Store
	if c.RateLimit.Store == "redis" {
		limitStore = ratelimit.NewRedisStore(d.Redis, "followpro:")
	} else {
		d.memLimits = ratelimit.NewMemoryStore()
		limitStore = d.memLimits
	}

	d.Limits.Login, err = ratelimit.New(limitStore, ratelimit.Rule{
		Name:    "login",
		Max:     c.RateLimit.LoginMax,
		Window:  c.RateLimit.LoginWindow,
		Message: "Too many authentication attempts, please try again later.",
	})
	if err != nil {
		return err
	}

	d.Limits.OTP, err = ratelimit.New(limitStore, ratelimit.Rule{
		Name:    "otp",
		Max:     c.RateLimit.OTPMax,
		Window:  c.RateLimit.OTPWindow,
		Message: "Too many OTP requests, please try again later.",
	})
	if err != nil {
		return err
	}

	d.Throttle = middleware.NewThrottle(middleware.ThrottleConfig{
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		CleanupInterval:   time.Minute,
	})

	if d.Redis != nil {
		d.cacheRedis = redisv8.NewClient(&redisv8.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		d.Cache = persist.NewRedisStore(d.cacheRedis)
	} else {
		d.Cache = persist.NewMemoryStore(time.Minute)
	}

	return nil
}

// Close releases every connection held by d
func (d *Deps) Close() error {
	var errs []error

	if d.memLimits != nil {
		errs = append(errs, d.memLimits.Close())
	}

	if d.cacheRedis != nil {
		errs = append(errs, d.cacheRedis.Close())
	}

	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}

	if d.DB != nil {
		errs = append(errs, db.Close(d.DB))
	}

	if err := errors.Join(errs...); err != nil {
		zap.L().Error("Failed to close dependencies", zap.Error(err))
		return err
	}

	return nil
}
