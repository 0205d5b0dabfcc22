package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/backend/local"
	"github.com/mjbphoto/gallery/backend/supabase"
	"github.com/mjbphoto/gallery/cache"
	"github.com/mjbphoto/gallery/config"
	"github.com/mjbphoto/gallery/dashboard"
	"github.com/mjbphoto/gallery/database"
	"github.com/mjbphoto/gallery/gallery"
	"github.com/mjbphoto/gallery/guard"
	"github.com/mjbphoto/gallery/handlers"
	"github.com/mjbphoto/gallery/logging"
	"github.com/mjbphoto/gallery/media"
	"github.com/mjbphoto/gallery/realtime"
	"github.com/mjbphoto/gallery/repository"
	"github.com/mjbphoto/gallery/web"
)

// app holds what main builds before routing.
type app struct {
	client      backend.Client
	objectFiles *media.LocalStorage // non-nil when objects are served by this process
	cleanup     []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger.Desugar())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize %s backend: %v", cfg.Backend, err)
	}
	defer a.close()

	galleryCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize %s cache: %v", cfg.CacheBackend, err)
	}
	if closer, ok := galleryCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	renderer, err := handlers.NewRenderer(web.Templates, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load templates: %v", err)
	}

	galleryService := gallery.NewService(a.client.Photos, galleryCache, cfg.CacheTTL, logger)
	processor := media.NewProcessor(media.DefaultCompressionPolicy, logger)
	dashboardService := dashboard.NewService(a.client, processor, logger)
	routeGuard := guard.New(a.client.Auth, "/login", logger)
	sessionSocket := realtime.NewSessionSocket(routeGuard, logger)

	pageHandler := &handlers.PageHandler{Gallery: galleryService, Render: renderer, Log: logger}
	authHandler := &handlers.AuthHandler{Auth: a.client.Auth, Render: renderer, Log: logger, SecureCookies: cfg.SecureCookies()}
	adminHandler := &handlers.AdminHandler{Dashboard: dashboardService, Render: renderer, Log: logger, MaxUploadBytes: cfg.UploadMaxBytes}
	apiHandler := &handlers.APIHandler{Gallery: galleryService, Dashboard: dashboardService, Log: logger, MaxUploadBytes: cfg.UploadMaxBytes}
	debugHandler := &handlers.DebugHandler{Backend: cfg.Backend, Cache: cfg.CacheBackend, Started: time.Now()}
	if counter, ok := a.client.Auth.(handlers.ListenerCounter); ok {
		debugHandler.Listeners = counter
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	csrfKey := []byte(cfg.CSRFKey)
	if len(csrfKey) == 0 {
		csrfKey = securecookie.GenerateRandomKey(32)
		if csrfKey == nil {
			logger.Fatal("FATAL: Failed to generate CSRF key")
		}
		logger.Warn("CSRF_KEY not set; forms rendered before a restart will be rejected after it")
	}

	staticFiles, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Fatalf("FATAL: Failed to open static assets: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// the session socket lives as long as the admin page, outside the
	// request timeout
	r.With(routeGuard.Middleware).Get("/admin/session/ws", sessionSocket.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles))))
		if a.objectFiles != nil {
			r.Get("/storage/{bucket}/*", handlers.ObjectServer(a.objectFiles, cfg.Bucket, logger))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(handlers.LimitBody(cfg.UploadMaxBytes))
		r.Use(handlers.CSRF(csrfKey, cfg.SecureCookies(), handlers.FormRejected(renderer, cfg.UploadMaxBytes), logger))

		r.Get("/", pageHandler.Home)
		r.Get("/gallery/{category}", pageHandler.ShowGallery)
		r.Get("/gallery/{category}/{id}", pageHandler.Detail)

		r.Get("/login", authHandler.LoginForm)
		r.Post("/login", authHandler.Login)

		r.Route("/admin", func(r chi.Router) {
			r.Use(routeGuard.Middleware)
			r.Get("/", adminHandler.Index)
			r.Post("/logout", authHandler.Logout)
			r.Post("/photos", adminHandler.Create)
			r.Route("/photos/{id}", func(r chi.Router) {
				r.Post("/", adminHandler.Update)
				r.Get("/edit", adminHandler.EditForm)
				r.Get("/delete", adminHandler.DeleteForm)
				r.Post("/delete", adminHandler.Delete)
			})
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(corsHandler.Handler)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/categories", apiHandler.Categories)
		r.Get("/gallery/{category}", apiHandler.GalleryPhotos)

		r.Route("/admin", func(r chi.Router) {
			r.Use(routeGuard.APIMiddleware(handlers.APIUnauthorized))
			r.Get("/photos", apiHandler.ListPhotos)
			r.Post("/photos", apiHandler.CreatePhoto)
			r.Put("/photos/{id}", apiHandler.UpdatePhoto)
			r.Delete("/photos/{id}", apiHandler.DeletePhoto)
			r.Get("/status", debugHandler.Status)
		})
	})

	r.NotFound(pageHandler.NotFound)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on %s (backend %s, cache %s)", serverAddr, cfg.Backend, cfg.CacheBackend)
		fmt.Printf("Server starting on http://localhost:%s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("FATAL: Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}

func buildBackend(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*app, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		httpClient := &http.Client{Timeout: 60 * time.Second}
		client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, httpClient, logger)
		logger.Infof("Using Supabase project %s (bucket %s)", cfg.SupabaseURL, cfg.Bucket)
		return &app{client: backend.Client{
			Auth:    supabase.NewAuth(client, cfg.SessionPollInterval),
			Photos:  supabase.NewTable(client, "photos"),
			Objects: supabase.NewStorage(client, cfg.Bucket),
		}}, nil

	case config.BackendLocal:
		return buildLocalBackend(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("unsupported backend '%s'", cfg.Backend)
}

func buildLocalBackend(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*app, error) {
	a := &app{}

	db, err := database.InitDB(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { db.Close() })

	gormDB, err := database.InitGormDB(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		a.cleanup = append(a.cleanup, func() { sqlDB.Close() })
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		a.close()
		return nil, err
	}

	users := repository.NewGormUserRepository(gormDB)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := users.EnsureAdmin(cfg.AdminEmail, cfg.AdminPassword); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to seed admin account: %w", err)
		}
		logger.Infof("Admin account %s is ready", cfg.AdminEmail)
	} else {
		logger.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set; no admin account was seeded")
	}

	var store media.Store
	var publicBase string
	switch cfg.ObjectStore {
	case config.ObjectStoreS3:
		s3Store, err := media.NewS3Storage(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Endpoint, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		store = s3Store
		publicBase = s3Store.PublicBaseURL() + "/" + cfg.Bucket
	default:
		localStore, err := media.NewLocalStorage(cfg.MediaStoragePath, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		store = localStore
		a.objectFiles = localStore
		publicBase = cfg.PublicBaseURL + "/storage/" + cfg.Bucket
	}

	a.client = backend.Client{
		Auth:    local.NewAuth(users, cfg.JWTSecret, cfg.SessionTTL, logger),
		Photos:  local.NewTable(db),
		Objects: local.NewObjects(store, cfg.Bucket, publicBase),
	}
	return a, nil
}

func buildCache(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (cache.Cache, error) {
	if cfg.CacheBackend == config.CacheRedis {
		c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "mjb:")
		if err != nil {
			return nil, err
		}
		logger.Infof("Gallery cache: redis at %s (ttl %s)", cfg.RedisAddr, cfg.CacheTTL)
		return c, nil
	}
	logger.Infof("Gallery cache: in-memory (ttl %s)", cfg.CacheTTL)
	return cache.NewMemory(), nil
}
