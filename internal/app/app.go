package app

import (
	"context"
	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/internal/controller"
	"lms_quiz_backend/internal/repository"
	"lms_quiz_backend/internal/service"
	"lms_quiz_backend/pkg/configwatcher"
	"lms_quiz_backend/pkg/database"
	"lms_quiz_backend/pkg/events"
	"lms_quiz_backend/pkg/logger"
	"lms_quiz_backend/pkg/monitoring"
	"lms_quiz_backend/pkg/security"
	"lms_quiz_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigFile string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client

	services  *services
	publisher events.Publisher
	tracer    *sdktrace.TracerProvider

	// 后台任务（过期清理、配置监听）随 Run 退出而停止
	ctx    context.Context
	cancel context.CancelFunc

	cbMu            sync.RWMutex
	configCallbacks []func(*config.Config)

	sweepInterval chan time.Duration
}

type repositories struct {
	user    *repository.UserRepository
	course  *repository.CourseRepository
	quiz    *repository.QuizRepository
	attempt *repository.AttemptRepository
	cache   *repository.QuizCache
}

type services struct {
	auth    *service.AuthService
	quiz    *service.QuizService
	attempt *service.AttemptService
}

type controllers struct {
	auth    *controller.AuthController
	quiz    *controller.QuizController
	attempt *controller.AttemptController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.cbMu.RLock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:    repository.NewUserRepository(db),
		course:  repository.NewCourseRepository(db),
		quiz:    repository.NewQuizRepository(db),
		attempt: repository.NewAttemptRepository(db),
		cache:   repository.NewQuizCache(rdb, cfg.Redis.QuizTTL),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.quiz = service.NewQuizService(repos.quiz, repos.course, repos.cache)
	s.attempt = service.NewAttemptService(s.quiz, repos.course, repos.attempt, a.publisher, cfg.Quiz.GradeScale)

	// 评分等级可热更新，已提交的作答不受影响
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.attempt.SetGradeScale(newCfg.Quiz.GradeScale)
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		quiz:    controller.NewQuizController(s.quiz),
		attempt: controller.NewAttemptController(s.attempt),
		health:  controller.NewHealthController(db, a.Redis),
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

func (a *App) initPublisher(cfg *config.Config) events.Publisher {
	if cfg.Events.AMQPURL == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		// 消息队列不可用不影响作答，只是不发事件
		logger.Log.Warn("连接 RabbitMQ 失败，事件发布已关闭", zap.Error(err))
		return events.NopPublisher{}
	}
	logger.Log.Info("RabbitMQ 事件发布已就绪", zap.String("exchange", cfg.Events.Exchange))
	return p
}

func (a *App) startBackgroundTasks(s *services) {
	interval := a.Config.Quiz.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if newCfg.Quiz.SweepInterval > 0 {
			select {
			case a.sweepInterval <- newCfg.Quiz.SweepInterval:
			default:
			}
		}
	})

	// 超时未提交的作答由后台按超时提交
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case d := <-a.sweepInterval:
				ticker.Reset(d)
				logger.Log.Info("超时清理间隔已更新", zap.Duration("interval", d))
			case <-ticker.C:
				n, err := s.attempt.SweepExpired(a.ctx)
				if err != nil {
					logger.Log.Error("超时作答清理失败", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Log.Info("已关闭超时作答", zap.Int("count", n))
				}
			}
		}
	}()

	if a.ConfigFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(a.ctx, a.ConfigFile, a.applyConfig); err != nil {
				logger.Log.Warn("配置监听已停止", zap.Error(err))
			}
		}()
	}
}

func NewApp(cfg *config.Config, configFile string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:        cfg,
		ConfigFile:    configFile,
		DB:            db,
		sweepInterval: make(chan time.Duration, 1),
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb
	app.publisher = app.initPublisher(cfg)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
	})

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("lms-quiz-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

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

	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
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
}
