// Package app binds the auth core to HTTP routes
package app

import (
	"fmt"
	"net/http"
	"time"

	"followpro/api/app/auth"
	"followpro/api/app/root"
	"followpro/api/app/user"
	"followpro/api/internal"
	"followpro/api/internal/model"
	"followpro/api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

func NewRouter(d *internal.Deps) (*gin.Engine, error) {
	router := gin.New()

	// No trusted proxies means ClientIP is the socket address
	if err := router.SetTrustedProxies(d.Config.Host.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies, %w", err)
	}

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     d.Config.Host.CORS,
			AllowMethods:     []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		ginzap.RecoveryWithZap(zap.L(), false),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Route not found",
			"requestID": c.GetString("requestID"),
		})
	})

	jwt := middleware.NewJWTMiddleware(d.Tokens)
	admin := middleware.Authorize(d.Users, model.RoleAdmin)
	loginLimit := middleware.RateLimit(d.Limits.Login)
	otpLimit := middleware.RateLimit(d.Limits.OTP)

	m := router.Group("/api", d.Throttle.Middleware(), middleware.BodySizeLimiter(1<<20))
	{
		// HEAD /api/heartbeat			-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/health			-> Reports whether the database answers
		m.GET("/health", func(c *gin.Context) { root.Health(c, d) })
	}

	a := m.Group("/auth")
	{
		// POST /api/auth/register		-> Creates an unverified account and mails a code
		a.POST("/register", func(c *gin.Context) { auth.Register(c, d) })

		// POST /api/auth/verify-otp		-> Consumes a one-time code
		a.POST("/verify-otp", otpLimit, func(c *gin.Context) { auth.VerifyOTP(c, d) })

		// POST /api/auth/login			-> Returns an access and refresh token
		a.POST("/login", loginLimit, func(c *gin.Context) { auth.Login(c, d) })

		// POST /api/auth/forgot-password	-> Mails a password reset code
		a.POST("/forgot-password", otpLimit, func(c *gin.Context) { auth.ForgotPassword(c, d) })

		// POST /api/auth/reset-password	-> Sets a new password using a reset code
		a.POST("/reset-password", otpLimit, func(c *gin.Context) { auth.ResetPassword(c, d) })

		// POST /api/auth/refresh-token		-> Trades a refresh token for a new pair
		a.POST("/refresh-token", func(c *gin.Context) { auth.RefreshToken(c, d) })

		// POST /api/auth/resend-otp		-> Replaces the outstanding code and mails it
		a.POST("/resend-otp", otpLimit, func(c *gin.Context) { auth.ResendOTP(c, d) })
	}

	u := m.Group("/users", jwt)
	{
		// GET /api/users/profile		-> Returns the caller's profile
		u.GET("/profile", func(c *gin.Context) { user.Profile(c, d) })

		// PUT /api/users/profile		-> Sets name and skills
		u.PUT("/profile", func(c *gin.Context) { user.UpdateProfile(c, d) })

		// PUT /api/users/change-password	-> Changes the caller's password
		u.PUT("/change-password", func(c *gin.Context) { user.ChangePassword(c, d) })

		// GET /api/users/all			-> Lists every user, admins only
		u.GET("/all", admin, cache.CacheByRequestURI(d.Cache, 15*time.Second), func(c *gin.Context) { user.All(c, d) })
	}

	return router, nil
}

// MakeLogger replaces the global zap logger with a colored development
// logger at the given level
func MakeLogger(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(log)
	return nil
}
