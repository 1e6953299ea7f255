// rebel-server: relay between robot agents and operator sessions.
// Serves robot and session WebSockets, a monitor feed, waypoint storage
// and a REST command API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teslashibe/go-rebel/internal/config"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/relay"
	"github.com/teslashibe/go-rebel/pkg/telemetry"
	"github.com/teslashibe/go-rebel/pkg/waypoint"
	"github.com/teslashibe/go-rebel/pkg/web"
)

var version = "0.1.0"

func main() {
	envFile := flag.String("env", ".env", "Environment file")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	debug := flag.Bool("debug", false, "Enable request logging")
	backend := flag.String("waypoints", "", "Waypoint backend: file or redis (overrides WAYPOINT_BACKEND)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if *backend != "" {
		cfg.WaypointBackend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	log.Init(cfg.LogLevel)
	log.Info("rebel-server starting", "version", version, "port", cfg.Port)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error("waypoint store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	r := relay.New()

	if cfg.MQTTBroker != "" {
		client, err := telemetry.Connect(telemetry.Options{
			Broker:   cfg.MQTTBroker,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			log.Error("mqtt", "error", err)
			os.Exit(1)
		}
		defer client.Disconnect(250)

		telemetry.NewBridge(client, cfg.MQTTTopicPrefix, cfg.MQTTQoS).Attach(r)
		log.Info("telemetry enabled", "broker", cfg.MQTTBroker, "prefix", cfg.MQTTTopicPrefix)
	}

	server := web.NewServer(web.Options{
		Port:    cfg.Port,
		Debug:   cfg.Debug,
		Version: version,
	}, r, store)
	server.StartAsync()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}

func openStore(cfg *config.Config) (waypoint.Store, func(), error) {
	switch cfg.WaypointBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}

		log.Info("waypoints in redis", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		return waypoint.NewRedisStore(client, cfg.RedisKey), func() { client.Close() }, nil

	default:
		store, err := waypoint.NewFileStore(cfg.WaypointDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info("waypoints on disk", "dir", store.Dir())
		return store, func() {}, nil
	}
}
