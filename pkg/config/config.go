// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package config generalizes the node's package-level default constants
// (see the teacher's pkg/p2p/kadcast/config.go) into a structured, TOML/env
// configuration surface loaded through viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PeerAddr identifies an upstream peer by its dial address.
type PeerAddr struct {
	Address string `mapstructure:"address"`
}

// Mempool holds the shared-mempool runtime's tunables (§6 Configuration surface).
type Mempool struct {
	BatchSize                     int           `mapstructure:"batch_size"`
	MaxConcurrentInboundSyncs     int           `mapstructure:"max_concurrent_inbound_syncs"`
	SystemTransactionGCIntervalMS int           `mapstructure:"system_transaction_gc_interval_ms"`
	SystemTransactionTTL          time.Duration `mapstructure:"system_transaction_ttl"`
	MinBroadcastRecipientCount    int           `mapstructure:"min_broadcast_recipient_count"`
	BroadcastSendTimeout          time.Duration `mapstructure:"broadcast_send_timeout"`
	BroadcastSleep                time.Duration `mapstructure:"broadcast_sleep"`
	ClientSubmissionBufferSize    int           `mapstructure:"client_submission_buffer_size"`
	UpstreamProxyEnabled          bool          `mapstructure:"upstream_proxy_enabled"`
	MaxPoolSize                   int           `mapstructure:"max_pool_size"`
}

// Peers holds the static upstream classification (§3 UpstreamConfig).
type Peers struct {
	Primary  []PeerAddr `mapstructure:"primary"`
	Fallback []PeerAddr `mapstructure:"fallback"`
}

// ValidatorNetwork lists peers classified as validator-network peers for the
// NonQualified/re-broadcast-loop rule in §4.3.
type ValidatorNetwork struct {
	Peers []PeerAddr `mapstructure:"peers"`
}

// Log configures the shared logrus sink.
type Log struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RPC configures the gRPC listeners for peer gossip and admission control.
type RPC struct {
	GossipListenAddr    string `mapstructure:"gossip_listen_addr"`
	AdmissionListenAddr string `mapstructure:"admission_listen_addr"`
	MetricsListenAddr   string `mapstructure:"metrics_listen_addr"`
}

// Config is the node's full configuration tree.
type Config struct {
	Mempool          Mempool          `mapstructure:"mempool"`
	Peers            Peers            `mapstructure:"peers"`
	ValidatorNetwork ValidatorNetwork `mapstructure:"validator_network"`
	Log              Log              `mapstructure:"log"`
	RPC              RPC              `mapstructure:"rpc"`
}

// Default mirrors the hard-coded constants the original source carried
// (50ms worker sleep, 1s RPC timeout — see §9 Open Question c) as defaults,
// now overridable configuration rather than literals.
func Default() Config {
	return Config{
		Mempool: Mempool{
			BatchSize:                     100,
			MaxConcurrentInboundSyncs:     4,
			SystemTransactionGCIntervalMS: 60_000,
			SystemTransactionTTL:          10 * time.Minute,
			MinBroadcastRecipientCount:    2,
			BroadcastSendTimeout:          time.Second,
			BroadcastSleep:                50 * time.Millisecond,
			ClientSubmissionBufferSize:    1024,
			UpstreamProxyEnabled:          false,
			MaxPoolSize:                   50_000,
		},
		Log: Log{
			Level: "info",
		},
		RPC: RPC{
			GossipListenAddr:    "0.0.0.0:9090",
			AdmissionListenAddr: "0.0.0.0:9091",
			MetricsListenAddr:   "0.0.0.0:9092",
		},
	}
}

// Load reads a TOML config file at path (if non-empty) layered over
// Default(). A MERIDIAN_-prefixed environment variable overrides a key only
// when a config file is given and that key appears in it; with an empty path
// Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("meridian")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
