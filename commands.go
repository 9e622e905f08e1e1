package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/server"
)

const cacheServiceName = "storefront"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront REST API and maintenance tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.Load()
		},
	}
	root.AddCommand(
		newServeCommand(),
		newIndexesCommand(),
		newSeedCommand(),
		newCreateAdminCommand(),
	)
	return root
}

// connect opens the configured database; the caller disconnects the client.
func connect() (*mongo.Client, *mongo.Database, error) {
	if config.AppEnv.MongoURI == "" {
		return nil, nil, errors.New("MONGO_URI is required")
	}
	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	db := client.Database(config.AppEnv.DBName)
	log.Println("[DB] [INFO] MongoDB connected to:", db.Name())
	return client, db, nil
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Println("[DB] [WARN] disconnect:", err)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.AppEnv
			if err := cfg.Validate(); err != nil {
				return err
			}

			client, db, err := connect()
			if err != nil {
				return err
			}
			defer disconnect(client)
			database.EnsureAllIndexes(db)

			catalog := newCatalogCache(cmd.Context(), cfg)
			publisher := newPublisher(cfg)
			defer publisher.Close()

			gin.SetMode(cfg.GinMode)
			router := server.NewRouter(server.Deps{
				DB:        db,
				Cache:     catalog,
				Publisher: publisher,
				Config:    cfg,
			})

			return listen(router, cfg.Port)
		},
	}
}

func newCatalogCache(ctx context.Context, cfg config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		log.Println("[CACHE] [INFO] REDIS_ADDR not set, using in-memory cache")
		return cache.NewMemoryCache(cacheServiceName)
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, cacheServiceName)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx, redisCache); err != nil {
		log.Println("[CACHE] [WARN] redis unreachable, using in-memory cache:", err)
		return cache.NewMemoryCache(cacheServiceName)
	}
	log.Println("[CACHE] [INFO] redis connected:", cfg.RedisAddr)
	return redisCache
}

func newPublisher(cfg config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Println("[EVENTS] [INFO] KAFKA_BROKERS not set, order events disabled")
		return events.NewNoopPublisher()
	}
	log.Printf("[EVENTS] [INFO] publishing order events to %s", cfg.KafkaOrderTopic)
	return events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
}

// listen serves until SIGINT/SIGTERM, then drains in-flight requests.
func listen(handler http.Handler, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("[MAIN] [INFO] listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Println("[MAIN] [INFO] shutting down on", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newIndexesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create or update MongoDB indexes",
		RunE: func(*cobra.Command, []string) error {
			client, db, err := connect()
			if err != nil {
				return err
			}
			defer disconnect(client)
			database.EnsureAllIndexes(db)
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert catalog products from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			seed, err := database.ParseSeed(f)
			if err != nil {
				return err
			}

			client, db, err := connect()
			if err != nil {
				return err
			}
			defer disconnect(client)

			inserted, err := database.SeedCatalog(cmd.Context(), db, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products (%d new)\n", len(seed.Products), inserted)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "path to the seed YAML file")
	return cmd
}

func newCreateAdminCommand() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or promote an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, db, err := connect()
			if err != nil {
				return err
			}
			defer disconnect(client)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return database.CreateAdmin(ctx, db, name, email, password)
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (min 6 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
