package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/config"
	cronrunner "syncpanel/internal/cron"
	"syncpanel/internal/db"
	"syncpanel/internal/handler"
	"syncpanel/internal/logger"
	"syncpanel/internal/paas"
	gormrepository "syncpanel/internal/repository/gorm"
	"syncpanel/internal/service"

	_ "syncpanel/docs"
)

func main() {
	cfgPath := os.Getenv("SP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var dbConn *db.DB
	if cfg.DB.Enabled {
		dbConn, err = db.Open(cfg.DB, logger)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(context.Background(), dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
	} else {
		logger.Info("db disabled; sync history and feature switches are off")
	}

	var (
		store       *gormrepository.Store
		settingsSvc *service.SystemSettingsService
		historySvc  *service.SyncHistoryService
		recorder    service.JobRecorder
	)
	if dbConn != nil {
		store = gormrepository.New(dbConn.Gorm)
		settingsSvc = &service.SystemSettingsService{Repo: store}
		if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
			logger.Warn("init default system switches failed", zap.Error(err))
		}
		historySvc = &service.SyncHistoryService{Repo: store, Flags: settingsSvc}
		recorder = historySvc
	}

	jobsHTTP := &http.Client{Timeout: cfg.JobService.Timeout}
	jobs := jobservice.NewClient(jobsHTTP, cfg.JobService.BaseURL, cfg.JobService.APIKey)
	registry := service.NewActiveJobsRegistry(jobs, logger)

	paasClient := initPaaSClient(cfg.PaaS, logger)
	notifiers := service.MultiNotifier{service.LogNotifier{Logger: logger}}
	if strings.TrimSpace(cfg.Notify.WebhookURL) != "" {
		notifiers = append(notifiers, &service.WebhookNotifier{
			URL:     cfg.Notify.WebhookURL,
			Project: cfg.Notify.Project,
			Timeout: cfg.Notify.WebhookTimeout,
			Logger:  logger,
		})
	}
	if paasClient != nil {
		notifiers = append(notifiers, &service.PaaSNotifier{Client: paasClient, Flags: settingsSvc, Logger: logger})
	}

	panels := &service.PanelManager{
		Jobs:         jobs,
		Registry:     registry,
		Recorder:     recorder,
		Notifier:     notifiers,
		Logger:       logger,
		PollInterval: cfg.Tracker.PollInterval,
		EventBuffer:  cfg.Panels.EventBuffer,
	}
	defer panels.CloseAll()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	engine.Use(paas.RequireBearerMiddleware(paas.AuthOptions{
		Disabled:       cfg.PaaS.AuthDisabled,
		RequireGateway: cfg.PaaS.RequireGateway,
	}))
	engine.Use(paas.InjectClientMiddleware(paasClient))
	engine.Use(paas.WriteAuditMiddleware(paasClient, logger))

	healthHandler := &handler.HealthHandler{Jobs: jobs}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)

	panelHandler := &handler.SyncPanelHandler{Panels: panels, Registry: registry, Logger: logger}
	panelHandler.Register(engine)
	streamHandler := &handler.PanelStreamHandler{Panels: panels, Logger: logger}
	streamHandler.Register(engine)
	historyHandler := &handler.SyncHistoryHandler{History: historySvc}
	historyHandler.Register(engine)
	if store != nil {
		settingsHandler := &handler.SystemSettingsHandler{Repo: store, Settings: settingsSvc}
		settingsHandler.Register(engine)
	}

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseCtx := ctx
	if paasClient != nil {
		baseCtx = paas.WithClient(ctx, paasClient)
	}

	if err := registry.RefreshJobs(baseCtx); err != nil {
		logger.Warn("initial active jobs refresh failed", zap.Error(err))
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	scheduler := &service.SyncScheduler{Manager: panels, Flags: settingsSvc, Logger: logger}
	if cfg.Cron.Enabled {
		entries, err := scheduler.Schedule(cfg.Cron.Schedules)
		if err != nil {
			logger.Fatal("invalid sync schedule", zap.Error(err))
		}
		for _, e := range entries {
			if _, err := cronRunner.Add("sync:"+e.Name, e.Spec, e.Run); err != nil {
				logger.Warn("cron register sync schedule failed", zap.Error(err))
			}
		}
	}
	if _, err := cronRunner.Add("panel-reaper", cfg.Panels.ReapSpec, scheduler.ReapJob(cfg.Panels.IdleTTL)); err != nil {
		logger.Warn("cron register panel reaper failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()
	for name, next := range cronRunner.Next() {
		logger.Info("cron job scheduled", zap.String("job", name), zap.Time("next", next))
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func initPaaSClient(cfg config.PaaSConfig, logger *zap.Logger) *paas.Client {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if base == "" || apiKey == "" {
		return nil
	}

	p := &paas.Client{BaseURL: base, APIKey: apiKey, Agent: cfg.Agent}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		if logger != nil {
			logger.Warn("paas login failed (logs/notify disabled)", zap.Error(err))
		}
		return nil
	}
	if logger != nil {
		logger.Info("paas login ok")
	}
	return p
}
