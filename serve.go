package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-i2cpd/lib/config"
	"github.com/go-i2p/go-i2cpd/lib/i2cp"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/go-i2p/go-i2cpd/lib/tunnel"
	"github.com/go-i2p/go-i2cpd/lib/util"
	"github.com/go-i2p/go-i2cpd/lib/util/signals"
	"github.com/go-i2p/go-i2cpd/lib/util/time/sntp"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept I2CP client connections until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("address", "", "I2CP listen address (overrides i2cp.address)")
	cmd.Flags().String("metrics", "", "Prometheus listen address (overrides metrics.address)")
	_ = viper.BindPFlag("i2cp.address", cmd.Flags().Lookup("address"))
	_ = viper.BindPFlag("metrics.address", cmd.Flags().Lookup("metrics"))
	return cmd
}

func serve(ctx context.Context, cfg config.ConfigDefaults) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer util.CloseAll()

	store, err := netdb.NewLeaseSetStore(cfg.NetDB.LeaseSetCacheSize)
	if err != nil {
		return err
	}
	book, err := openAddressBook(cfg.NetDB.AddressBookPath)
	if err != nil {
		return err
	}
	util.RegisterCloser(book)

	clock := sntp.NewClock(nil, sntp.Config{
		Servers:       cfg.Time.NTPServers,
		Disabled:      cfg.Time.NTPDisabled,
		QueryInterval: cfg.Time.QueryInterval,
	})
	clock.Start()
	util.RegisterCloser(util.CloserFunc(func() error {
		clock.Stop()
		return nil
	}))

	routerHash, err := newRouterHash()
	if err != nil {
		return err
	}
	tunnels := tunnel.NewLocalService(tunnel.LocalConfig{
		RouterHash:      routerHash,
		InboundQuantity: cfg.Tunnel.InboundQuantity,
		Lifetime:        cfg.Tunnel.Lifetime,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := i2cp.NewMetrics(reg)
	if cfg.Metrics.Address != "" {
		startMetricsServer(cfg.Metrics.Address, reg)
	}

	server, err := i2cp.NewServer(&i2cp.ServerConfig{
		ListenAddr:        cfg.I2CP.Address,
		Network:           cfg.I2CP.Network,
		MaxSessions:       cfg.I2CP.MaxSessions,
		BufferSize:        cfg.I2CP.BufferSize,
		MessageQueueSize:  cfg.I2CP.MessageQueueSize,
		ReadTimeout:       cfg.I2CP.ReadTimeout,
		MessagesPerSecond: cfg.I2CP.MessagesPerSecond,
		MessageBurst:      cfg.I2CP.MessageBurst,
		LeaseSets:         store,
		Tunnels:           tunnels,
		Resolver:          netdb.NewResolver(store, book),
		Clock:             clock,
		Metrics:           metrics,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	watcher := signals.NewWatcher(func() {
		log.WithField("at", "main.serve").Info("reload_requested_restart_to_apply_config")
	})
	defer watcher.Stop()
	sig := watcher.Wait(ctx)
	log.WithFields(logger.Fields{
		"at":     "main.serve",
		"signal": sig,
	}).Info("shutting_down")

	if err := server.Stop(); err != nil {
		return err
	}
	tunnels.Wait()
	return nil
}

func openAddressBook(path string) (*netdb.AddressBook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, oops.Wrapf(err, "could not create address book directory")
	}
	return netdb.OpenAddressBook(path)
}

func startMetricsServer(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics_server_failed")
		}
	}()
	util.RegisterCloser(util.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	log.WithField("address", addr).Info("metrics_server_started")
}

// newRouterHash returns the random hash used as the gateway of local tunnels.
func newRouterHash() (common.Hash, error) {
	var h common.Hash
	if _, err := rand.Read(h[:]); err != nil {
		return h, oops.Wrapf(err, "failed to generate router hash")
	}
	return h, nil
}
