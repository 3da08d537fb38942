// Package web exposes the planner over HTTP/JSON and GraphQL, and streams
// raw collection snapshots over WebSocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"tripsync/config"
	"tripsync/db/db"
	"tripsync/graph"
	"tripsync/planner"
)

type ServiceConfig struct {
	IsDev   bool
	Port    string
	Planner *planner.Planner
	// Store backs the snapshot stream; usually the planner's own store.
	Store db.Subscriber
	// Rate limits requests per client IP; zero means DefaultRate.
	Rate limiter.Rate
	// MaxMultipartMemory caps in-memory multipart parsing; zero keeps gin's default.
	MaxMultipartMemory int64
	Logger             *slog.Logger
}

func (cfg *ServiceConfig) defaults() {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rate.Limit == 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
}

// NewRouter builds the gin engine with every route.
func NewRouter(cfg ServiceConfig) *gin.Engine {
	cfg.defaults()
	r := gin.New()
	if cfg.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = cfg.MaxMultipartMemory
	}
	setupMiddlewares(r, cfg)

	h := &handler{p: cfg.Planner}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/:collection", newStreamer(cfg.Store, cfg.IsDev, cfg.Logger).serve)

	gql := GraphQLHandler(graph.NewExecutableSchema(graph.Config{Resolvers: &graph.Resolver{Planner: cfg.Planner, Store: cfg.Store}}), cfg.IsDev)
	r.POST("/query", gql)
	r.GET("/query", gql)
	if cfg.IsDev {
		r.GET("/playground", GraphQLPlaygroundHandler(config.AppName, "/query"))
	}

	api := r.Group("/api", gzip.Gzip(gzip.DefaultCompression))
	api.GET("/status", h.status)
	api.GET("/itinerary", h.itinerary)
	api.GET("/bookings", h.bookings)

	api.GET("/todos", h.listTodos)
	api.POST("/todos", h.addTodo)
	api.PATCH("/todos/:id", h.editTodo)
	api.DELETE("/todos/:id", h.deleteTodo)
	api.POST("/todos/:id/toggle", h.toggleTodo)
	api.PUT("/todos/:id/assignees/:member", h.assignTodo(true))
	api.DELETE("/todos/:id/assignees/:member", h.assignTodo(false))

	api.GET("/shopping", h.listShopping)
	api.POST("/shopping", h.addShopping)
	api.PATCH("/shopping/:id", h.editShopping)
	api.PUT("/shopping/:id/buyer", h.setBuyer)
	api.DELETE("/shopping/:id", h.deleteShopping)
	api.POST("/uploads", h.uploadImage)

	api.GET("/journal", h.listJournal)
	api.POST("/journal", h.addPost)

	api.GET("/members", h.listMembers)
	api.POST("/members", h.addMember)
	api.DELETE("/members/:id", h.deleteMember)

	api.GET("/packing", h.listPacking)
	api.POST("/packing", h.addPacking)
	api.POST("/packing/:id/toggle", h.togglePacking)
	api.PUT("/packing/:id/image", h.attachPackingImage)
	api.DELETE("/packing/:id", h.deletePacking)
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down.
func Serve(ctx context.Context, cfg ServiceConfig) error {
	if !cfg.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}
	cfg.defaults()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info("http server listening", "addr", srv.Addr, "dev", cfg.IsDev)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	cfg.Logger.Info("http server stopped")
	return nil
}
