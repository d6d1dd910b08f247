package front

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/authmw"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/logging"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

const apiVersion = "/api/v1"

var config Config

// authenticator is the identity provider as seen by the login endpoints.
type authenticator interface {
	LoginUser(ctx context.Context, username, password string) (*gocloak.JWT, error)
	RefreshToken(ctx context.Context, refreshToken string) (*gocloak.JWT, error)
	Logout(ctx context.Context, refreshToken string) error
}

type api struct {
	auth  authenticator
	guard gin.HandlerFunc // validates the token and the caller's role
	views *viewRegistry
	log   *logrus.Logger
}

func setCors(engine *gin.Engine, cfg Config) {
	corsconfig := cors.DefaultConfig()
	corsconfig.AllowOrigins = cfg.AllowedOrigins
	corsconfig.AllowMethods = cfg.AllowedMethods
	corsconfig.AllowHeaders = cfg.AllowedHeaders
	engine.Use(cors.New(corsconfig))
}

func newEngine(cfg Config, a *api) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(a.log))
	setCors(engine, cfg)
	setRoutes(engine, a)
	return engine
}

func setRoutes(engine *gin.Engine, a *api) {
	root := engine.Group("/")
	{
		root.GET("/healthz", func(c *gin.Context) {
			respondInFormat(c, http.StatusOK, gin.H{
				"status": "alive",
				"views":  a.views.count(),
			})
		})
	}

	apiV1 := engine.Group(apiVersion)
	{
		apiV1.POST("/login", a.handleLogin)
		apiV1.POST("/refresh", a.handleRefresh)
		apiV1.POST("/logout", a.handleLogout)
	}

	verified := apiV1.Group("/authenticated", a.guard)
	{
		verified.GET("/me", handleMe)
		verified.POST("/views", a.handleMountView)
		verified.DELETE("/views/:view", a.handleUnmountView)

		view := verified.Group("/views/:view", a.withView())
		{
			view.GET("/projects/:project/tasks", handleListTasks)
			view.POST("/projects/:project/tasks", handleCreateTask)
			view.PUT("/tasks/:id", handleUpdateTask)
			view.DELETE("/tasks/:id", handleDeleteTask)

			view.GET("/tasks/:id/subtasks", handleListSubtasks)
			view.POST("/tasks/:id/subtasks", handleCreateSubtask)
			view.PUT("/subtasks/:id", handleUpdateSubtask)
			view.DELETE("/subtasks/:id", handleDeleteSubtask)
			view.POST("/subtasks/:id/assign", handleAssignSubtask)

			view.GET("/users", handleListUsers)

			view.GET("/projects/:project/chat", handleLoadChat)
			view.POST("/projects/:project/chat", handleSendChat)
		}
	}

	engine.NoRoute(func(c *gin.Context) {
		respondInFormat(c, http.StatusNotFound, gin.H{"error": "bad path"})
	})
}

// InitAndServe loads the configuration at confPath and serves until SIGINT/SIGTERM.
func InitAndServe(confPath string) error {
	config = loadConfig(confPath)
	logging.Init(logging.Options{SystemName: "pms-front", File: config.LogFile, Level: config.LogLevel})
	log := logging.Logger
	log.Info(config.toString())
	setGinMode(config.ApiGinMode)

	kc, err := authmw.NewService(authmw.ServiceConfig{
		Address:      config.AuthAddress,
		Realm:        config.Realm,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Issuer:       config.Issuer,
		Audience:     config.Audience,
	}, log)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	defer kc.Close()

	ds := tasksync.NewDownstream(tasksync.DownstreamOptions{
		BaseURL:            config.ApiBaseURL,
		Timeout:            config.RequestTimeout,
		BreakerMaxFailures: uint32(max(config.BreakerMaxFailures, 0)),
		BreakerTimeout:     config.BreakerTimeout,
		Logger:             log,
	})
	views := newViewRegistry(ds, tasksync.ViewOptions{Delays: config.delays()}, config.MaxViews)
	defer views.closeAll()

	engine := newEngine(config, &api{
		auth:  kc,
		guard: kc.KCAuth.RequireRoles(config.RequiredRoles...),
		views: views,
		log:   log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port),
		Handler:           engine,
		ReadHeaderTimeout: time.Second * 5,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	stop()
	log.Info("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}

func setGinMode(mode string) {
	switch strings.ToLower(mode) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
}

func respondInFormat(c *gin.Context, status int, data any) {
	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "xml":
		c.XML(status, data)
	default:
		c.JSON(status, data)
	}
}
