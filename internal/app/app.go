package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/controller"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/service"
	"prepcourse_backend/pkg/configwatcher"
	"prepcourse_backend/pkg/database"
	"prepcourse_backend/pkg/logger"
	"prepcourse_backend/pkg/monitoring"
	"prepcourse_backend/pkg/security"
	"prepcourse_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	cron            *cron.Cron
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	course     *repository.CourseRepository
	enrollment *repository.EnrollmentRepository
	courseTest *repository.CourseTestRepository
}

type services struct {
	ai            *service.AIService
	auth          *service.AuthService
	generator     *service.ContentGenerator
	course        *service.CourseService
	certification *service.CertificationService
	certificate   *service.CertificateService
	views         service.ViewCounter
}

type controllers struct {
	auth       *controller.AuthController
	course     *controller.CourseController
	courseTest *controller.CourseTestController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		course:     repository.NewCourseRepository(db),
		enrollment: repository.NewEnrollmentRepository(db),
		courseTest: repository.NewCourseTestRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.ai = service.NewAIService(cfg.AI)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.generator = service.NewContentGenerator(s.ai)

	// 有 Redis 时跨实例加锁和计数，否则退化为进程内实现
	var locker service.Locker
	if rdb != nil {
		locker = service.NewRedisLocker(rdb)
		s.views = service.NewRedisViewCounter(rdb, repos.course)
	} else {
		locker = service.NewLocalLocker()
		s.views = service.NewDirectViewCounter(repos.course)
	}

	s.course = service.NewCourseService(repos.course, repos.enrollment, s.generator, s.views)
	s.certification = service.NewCertificationService(repos.course, repos.enrollment, repos.courseTest, s.ai, locker, cfg)
	s.certificate = service.NewCertificateService(repos.course, repos.user, repos.courseTest)

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.ai.UpdateConfig(newCfg.AI)
		s.certification.UpdatePolicy(newCfg.Assessment)
		s.certification.SetLockTTL(newCfg.AI.Timeout() + 30*time.Second)
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		course:     controller.NewCourseController(s.course),
		courseTest: controller.NewCourseTestController(s.certification, s.certificate),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks schedules the view counter flush when views are buffered in redis.
func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	a.cron = cron.New()

	if counter, ok := s.views.(*service.RedisViewCounter); ok {
		_, err := a.cron.AddFunc(cfg.Jobs.ViewFlushSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			n, err := counter.Flush(ctx)
			if err != nil {
				logger.Log.Error("view counter flush failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Log.Debug("view counters flushed", zap.Int64("views", n))
			}
		})
		if err != nil {
			logger.Log.Error("invalid view flush schedule", zap.String("spec", cfg.Jobs.ViewFlushSpec), zap.Error(err))
		}
	}

	a.cron.Start()
}

func (a *App) watchConfig(ctx context.Context) {
	configFile := filepath.Join(a.ConfigDir, "config.yaml")
	go func() {
		err := configwatcher.WatchConfig(ctx, configFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("config hot reload disabled", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)
	if err := controller.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	migrate := cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("prepcourse-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)
	app.startBackgroundTasks(services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if counter, ok := a.services.views.(*service.RedisViewCounter); ok {
		if _, err := counter.Flush(ctx); err != nil {
			logger.Log.Error("final view counter flush failed", zap.Error(err))
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
	_ = logger.Log.Sync()
}
