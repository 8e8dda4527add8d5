// Command julead runs one JULEA backend daemon — object, kv, or db — over
// a plain TCP listener, following the same env-driven configuration and
// graceful-shutdown pattern as the node service this project started from.
//
// Required environment:
//   - JULEA_BACKEND_TYPE: "object", "kv", or "db"
//   - JULEA_CONFIG: path to the YAML configuration file
//
// Optional environment:
//   - JULEA_SERVER_INDEX: which entry of servers.<type> in the config file
//     this process serves (default 0)
//   - JULEA_METRICS_LISTEN: address for the /metrics HTTP endpoint
//     (default ":9090"; empty disables it)
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/config"
	"github.com/dreamware/julea/internal/server"
	"github.com/dreamware/julea/internal/trace"

	_ "github.com/dreamware/julea/backend/db/memory"
	_ "github.com/dreamware/julea/backend/db/null"
	_ "github.com/dreamware/julea/backend/kv/memory"
	_ "github.com/dreamware/julea/backend/kv/null"
	_ "github.com/dreamware/julea/backend/object/memory"
	_ "github.com/dreamware/julea/backend/object/null"
)

func main() {
	kind := config.MustGetenv("JULEA_BACKEND_TYPE")
	cfgPath := config.MustGetenv("JULEA_CONFIG")
	serverIndexStr := config.Getenv("JULEA_SERVER_INDEX", "0")
	metricsListen := config.Getenv("JULEA_METRICS_LISTEN", ":9090")

	serverIndex, err := strconv.Atoi(serverIndexStr)
	if err != nil {
		log.Fatalf("julead: invalid JULEA_SERVER_INDEX %q: %v", serverIndexStr, err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("julead: %v", err)
	}

	var addrs []string
	var backendName, dataPath string
	switch kind {
	case "object":
		addrs, backendName, dataPath = cfg.Servers.Object, cfg.Object.Backend, cfg.Object.Path
	case "kv":
		addrs, backendName, dataPath = cfg.Servers.KV, cfg.KV.Backend, cfg.KV.Path
	case "db":
		addrs, backendName, dataPath = cfg.Servers.DB, cfg.DB.Backend, cfg.DB.Path
	default:
		log.Fatalf("julead: unknown JULEA_BACKEND_TYPE %q", kind)
	}
	if serverIndex < 0 || serverIndex >= len(addrs) {
		log.Fatalf("julead: server index %d out of range for %d configured %s servers", serverIndex, len(addrs), kind)
	}
	listen := addrs[serverIndex]
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		log.Fatalf("julead: invalid listen address %q: %v", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("julead: invalid port in %q: %v", listen, err)
	}

	registry := prometheus.NewRegistry()
	stats := trace.NewStatistics(registry, listen)

	srv := &server.Server{Stats: stats}
	switch kind {
	case "object":
		srv.Object, err = backend.NewObject(backendName, config.ExpandPath(dataPath, port))
	case "kv":
		srv.KV, err = backend.NewKV(backendName, config.ExpandPath(dataPath, port))
	case "db":
		srv.DB, err = backend.NewDB(backendName, config.ExpandPath(dataPath, port))
	}
	if err != nil {
		log.Fatalf("julead: backend %q: %v", backendName, err)
	}

	if err := srv.Listen(listen); err != nil {
		log.Fatalf("julead: listen %s: %v", listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("julead: metrics server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("julead[%s]: serving %s on %s (backend=%s)", kind, kind, listen, backendName)
	if err := srv.Serve(ctx); err != nil {
		log.Printf("julead: serve: %v", err)
	}
	log.Printf("julead[%s]: stopped", kind)
}
