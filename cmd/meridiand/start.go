// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/ed25519"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/meridian-chain/meridian/pkg/admission"
	"github.com/meridian-chain/meridian/pkg/config"
	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/sharedmempool"
	"github.com/meridian-chain/meridian/pkg/storage"
	transportgrpc "github.com/meridian-chain/meridian/pkg/transport/grpc"
	"github.com/meridian-chain/meridian/pkg/vm"
)

func newStartCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the shared mempool, gossip transport and admission-control services",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return run(cfg, dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "meridian-data", "path to the account-state database")
	return cmd
}

func run(cfg config.Config, dbPath string) error {
	if err := log.Setup(log.Options{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		return err
	}
	logger := log.WithPrefix("meridiand")

	db, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	upstream := buildUpstreamConfig(cfg)

	reg := prometheus.NewRegistry()
	gossip := transportgrpc.NewServer(cfg.RPC.GossipListenAddr, nil)
	for _, addr := range cfg.Peers.Primary {
		gossip.RegisterPeerAddr(peer.NetworkID{Scope: peer.FullNodeNetwork, ID: peer.ID(addr.Address)}, addr.Address)
	}
	for _, addr := range cfg.Peers.Fallback {
		gossip.RegisterPeerAddr(peer.NetworkID{Scope: peer.FullNodeNetwork, ID: peer.ID(addr.Address)}, addr.Address)
	}
	for _, addr := range cfg.ValidatorNetwork.Peers {
		gossip.RegisterPeerAddr(peer.NetworkID{Scope: peer.ValidatorNetwork, ID: peer.ID(addr.Address)}, addr.Address)
	}

	rt := sharedmempool.New(cfg, gossip, db, vm.NewReference(), upstream, reg)

	_, nodeKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	sessions := admission.NewSessionManager(nodeKey)
	admissionServer := admission.NewServer(cfg.RPC.AdmissionListenAddr, sessions, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.Start(ctx)
	defer rt.Stop()

	errCh := make(chan error, 3)
	go func() { errCh <- gossip.Serve(ctx) }()
	go func() { errCh <- admissionServer.Serve(ctx) }()
	go func() { errCh <- serveMetrics(ctx, cfg.RPC.MetricsListenAddr, reg) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig).Info("shutting down")
		cancel()
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func buildUpstreamConfig(cfg config.Config) peer.UpstreamConfig {
	toNetIDs := func(addrs []config.PeerAddr, scope peer.NetworkScope) []peer.NetworkID {
		out := make([]peer.NetworkID, len(addrs))
		for i, a := range addrs {
			out[i] = peer.NetworkID{Scope: scope, ID: peer.ID(a.Address)}
		}
		return out
	}

	return peer.NewUpstreamConfig(
		toNetIDs(cfg.Peers.Primary, peer.FullNodeNetwork),
		toNetIDs(cfg.Peers.Fallback, peer.FullNodeNetwork),
		toNetIDs(cfg.ValidatorNetwork.Peers, peer.ValidatorNetwork),
	)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
