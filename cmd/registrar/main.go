package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/haeun-dev/registrar-api/api/swagger"
	"github.com/haeun-dev/registrar-api/internal/admission"
	"github.com/haeun-dev/registrar-api/internal/handler"
	"github.com/haeun-dev/registrar-api/internal/middleware"
	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/internal/repository"
	"github.com/haeun-dev/registrar-api/internal/service"
	"github.com/haeun-dev/registrar-api/pkg/cache"
	"github.com/haeun-dev/registrar-api/pkg/config"
	"github.com/haeun-dev/registrar-api/pkg/database"
	"github.com/haeun-dev/registrar-api/pkg/logger"
	corsmiddleware "github.com/haeun-dev/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/haeun-dev/registrar-api/pkg/middleware/requestid"
	"github.com/haeun-dev/registrar-api/pkg/storage"
)

// @title Registrar API
// @version 1.0.0
// @description Course catalog, enrollment admission and student records service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Fatalw("failed to connect redis", "error", err)
	}
	defer rdb.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	authSvc := service.NewAuthService(userRepo, rdb, validate, logr, cfg.JWT)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, rdb, metricsSvc, cfg.Catalog.CapacityCacheTTL, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, validate, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger := admission.NewLedger()
	writer := admission.NewWriter(enrollmentRepo, ledger, cfg.Admission, metricsSvc, logr)
	writer.Start(rootCtx)
	defer writer.Stop()

	reconciler := admission.NewReconciler(enrollmentRepo, ledger, logr)
	if err := reconciler.Resync(rootCtx); err != nil {
		sugar.Fatalw("failed to rehydrate admission ledger", "error", err)
	}

	controller := admission.NewController(ledger, courseSvc, studentSvc, writer, metricsSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(controller, ledger, enrollmentRepo, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		sugar.Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Export.ResultTTL)
	rosterExportSvc := service.NewRosterExportService(enrollmentRepo, exportStore, exportSigner, cfg.Export.ResultTTL, cfg.APIPrefix, logr)
	if err := rosterExportSvc.Cleanup(); err != nil {
		sugar.Warnw("export cleanup failed", "error", err)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	exportHandler := handler.NewExportHandler(rosterExportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "database"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed token is the credential; no JWT on the download path.
	api.GET("/exports/download", exportHandler.Download)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		students := protected.Group("/students")
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), studentHandler.Create)
		students.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Delete)

		courses := protected.Group("/courses")
		courses.GET("", courseHandler.List)
		courses.GET("/:code", courseHandler.Get)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), courseHandler.Create)
		courses.PATCH("/:code", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), courseHandler.Update)
		courses.DELETE("/:code", middleware.RequireRoles(models.RoleAdmin), courseHandler.Delete)
		courses.GET("/:code/roster", enrollmentHandler.Roster)
		courses.GET("/:code/roster/export", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), enrollmentHandler.ExportRoster)
		courses.POST("/:code/roster/exports", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), exportHandler.Archive)

		enrollments := protected.Group("/enrollments")
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("", enrollmentHandler.Enroll)
		enrollments.POST("/drop", enrollmentHandler.Drop)

		announcements := protected.Group("/announcements")
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), announcementHandler.Create)
		announcements.PUT("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), announcementHandler.Update)
		announcements.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), announcementHandler.Delete)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	sugar.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}

	// Drain queued enrollment writes before releasing the DB pool.
	writer.Stop()
	sugar.Infow("server stopped")
}
