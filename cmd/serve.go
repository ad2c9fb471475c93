package cmd

import (
	"database/sql"
	"net"
	"net/http"

	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server for the user account service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogging(cfg)

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	mediaService, err := service.NewMediaService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build media service")
	}

	userRepo := repository.NewUserRepository(db)
	tokenService := service.NewTokenService(cfg)
	userAuthService := service.NewUserAuthService(userRepo, tokenService, mediaService)

	startHTTPServer(cfg, userRepo, tokenService, userAuthService)
}

func startHTTPServer(cfg *config.Config, userRepo *repository.UserRepository, tokenService *service.TokenService, userAuthService service.UserAuthService) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(corsConfig(cfg.CORSOrigin)))

	userAuthController := controller.NewUserAuthController(userAuthService, cfg)
	authMiddleware := middleware.NewAuthMiddleware(tokenService, userRepo)

	users := e.Group("/api/v1/users")
	users.POST("/register", userAuthController.Register)
	users.POST("/login", userAuthController.Login)
	users.POST("/refresh-token", userAuthController.RefreshToken)

	usersProtected := users.Group("")
	usersProtected.Use(authMiddleware.RequireAuth)
	usersProtected.POST("/logout", userAuthController.Logout)
	usersProtected.GET("/me", userAuthController.Me)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

// corsConfig enables credentialed requests only for an explicit origin.
// Browsers reject Access-Control-Allow-Credentials combined with a wildcard
// origin, so the default "*" stays a plain non-credentialed policy and
// cross-origin cookie auth requires CORS_ORIGIN to be set.
func corsConfig(origin string) echomiddleware.CORSConfig {
	return echomiddleware.CORSConfig{
		AllowOrigins:     []string{origin},
		AllowCredentials: origin != "*",
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}
}

func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
