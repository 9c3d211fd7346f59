package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/mongo/gridfs"

	"gamelysync/internal/auth"
	"gamelysync/internal/config"
	"gamelysync/internal/di"
	"gamelysync/internal/gateway"
	"gamelysync/internal/gateway/mongostore"
	"gamelysync/internal/gateway/sqlstore"
	"gamelysync/internal/httpapi"
	"gamelysync/internal/media"
)

func main() {
	cfg := config.Load()

	log.Printf("Selecting backend: %s", cfg.Backend)
	gw, cleanup, err := openGateway(cfg)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}

	mediaStore := openMediaStore(cfg, gw)

	log.Println("Initializing sync client...")
	c := di.InitializeClient(gw, mediaStore, cfg)
	tokens := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	api := httpapi.New(c, tokens)
	router := api.Router()
	if g, ok := mediaStore.(*media.GridFSStore); ok {
		router.HandleFunc("/media/{id}", serveGridFS(g)).Methods("GET")
	}
	handler := corsSettings().Handler(loggingMiddleware(router))

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Drain pending optimistic writes before dropping the backend.
	c.Close()
	if cleanup != nil {
		if err := cleanup(ctx); err != nil {
			log.Printf("Backend cleanup failed: %v", err)
		}
	}

	log.Println("Server gracefully stopped")
}

// openGateway picks the remote backend from config.
func openGateway(cfg *config.Config) (gateway.Gateway, func(context.Context) error, error) {
	switch cfg.Backend {
	case "memory":
		return gateway.NewMemory(), nil, nil
	case "mongo":
		log.Println("Connecting to MongoDB...")
		store, disconnect, err := mongostore.Connect(context.Background(), cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Println("MongoDB connection established successfully!")
		return store, disconnect, nil
	case "mysql":
		log.Println("Connecting to MySQL...")
		store, err := sqlstore.Open(cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		log.Println("MySQL connection established successfully!")
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openMediaStore prefers Cloudinary when configured; a mongo deployment
// without it falls back to a GridFS bucket served off this process.
func openMediaStore(cfg *config.Config, gw gateway.Gateway) media.Store {
	if cfg.Cloudinary.CloudName != "" {
		return media.NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.UploadPreset)
	}
	if ms, ok := gw.(*mongostore.Store); ok {
		bucket, err := gridfs.NewBucket(ms.Database())
		if err == nil {
			host := cfg.Server.Host
			if host == "" {
				host = "localhost"
			}
			base := fmt.Sprintf("http://%s:%s/media", host, cfg.Server.Port)
			log.Println("No Cloudinary configured, storing media in GridFS")
			return media.NewGridFSStore(bucket, base)
		}
		log.Printf("GridFS bucket unavailable: %v", err)
	}
	return media.NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.UploadPreset)
}

func serveGridFS(g *media.GridFSStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := g.Download(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}
}

func corsSettings() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Authorization"},
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
