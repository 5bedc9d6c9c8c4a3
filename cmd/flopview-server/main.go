// Command flopview-server serves the flopview web UI and HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/mdns"
	"github.com/jgarman/flopview/internal/system"
	"github.com/jgarman/flopview/internal/webui"
)

func main() {
	configPath := pflag.String("config", "/etc/flopview/config.json", "configuration file (.json or .yaml)")
	port := pflag.Int("port", 0, "listen port (overrides the configuration)")
	logLevel := pflag.String("log-level", "", "log level (overrides the configuration)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logging.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.L()

	if cfg.Extract.Root != "" {
		if err := os.MkdirAll(cfg.Extract.Root, 0755); err != nil {
			log.Fatal("Failed to create extraction root", zap.String("root", cfg.Extract.Root), zap.Error(err))
		}
	}

	dm := diskmanager.New(catalog.New(all.Library{Media: cfg.FAT32Media()}))

	// Create web UI handler
	webHandler, err := webui.New(dm, webui.Options{
		MaxUploadBytes:  cfg.Upload.MaxSizeMB << 20,
		ExtractRoot:     cfg.Extract.Root,
		IncludeRootName: cfg.Extract.IncludeRootName,
	})
	if err != nil {
		log.Fatal("Failed to initialize web UI", zap.Error(err))
	}
	defer webHandler.Close()

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
		AllowCredentials: cfg.Server.CORS.AllowCredentials,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      c.Handler(webHandler.Router()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var advertiser mdns.Advertiser
	if cfg.MDNS.Enabled {
		name, txt := cfg.MDNS.ServiceName, cfg.MDNS.TXTRecords
		if id, err := system.HostID(); err == nil {
			name = system.InstanceName(name, id)
			txt = append(append([]string{}, txt...), "id="+id)
		} else {
			log.Debug("No host id for mDNS", zap.Error(err))
		}
		advertiser, err = mdns.Announce(mdns.Options{
			Name:       name,
			Port:       cfg.Server.Port,
			TXTRecords: txt,
			UseDBus:    cfg.MDNS.UseDBus,
		})
		if err != nil {
			log.Warn("mDNS advertisement disabled", zap.Error(err))
		}
	}

	// Close idle sessions
	ttl := time.Duration(cfg.Server.SessionTTL) * time.Minute
	stopReaper := make(chan struct{})
	if ttl > 0 {
		go func() {
			ticker := time.NewTicker(ttl / 4)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					webHandler.Reap(ttl)
				case <-stopReaper:
					return
				}
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	close(stopReaper)
	if advertiser != nil {
		if err := advertiser.Stop(); err != nil {
			log.Warn("Failed to stop mDNS advertisement", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
