// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/ids"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces every environment variable read by the
	// orchestrator, e.g. COURIER_SENDER_ADDRESS.
	EnvPrefix = "COURIER"

	// Configuration keys
	LogLevelKey         = "log-level"
	SenderAddressKey    = "sender-address"
	AdminAddressKey     = "admin-address"
	SourceEndpointKey   = "source-endpoint"
	DestEndpointKey     = "dest-endpoint"
	SourceRPCURLKey     = "source-rpc-url"
	DestRPCURLKey       = "dest-rpc-url"
	GuardianAPIURLKey   = "guardian-api-url"
	ExecutorAPIURLKey   = "executor-api-url"
	ExplorerURLKey      = "explorer-url"
	GreetingKey         = "greeting"
	GasLimitKey         = "gas-limit"
	SignatureTimeoutKey = "signature-timeout-seconds"
	RelayTimeoutKey     = "relay-timeout-seconds"
	DeliveryTimeoutKey  = "delivery-timeout-seconds"
)

const (
	defaultLogLevel         = "info"
	defaultSourceRPCURL     = "https://ethereum-sepolia-rpc.publicnode.com"
	defaultDestRPCURL       = "https://base-sepolia-rpc.publicnode.com"
	defaultGuardianAPIURL   = "http://127.0.0.1:8080"
	defaultExecutorAPIURL   = "http://127.0.0.1:8081"
	defaultExplorerURL      = "https://sepolia.etherscan.io"
	defaultGreeting         = "Hello from Sepolia!"
	defaultGasLimit         = 250_000
	defaultSignatureTimeout = 120
	defaultRelayTimeout     = 60
	defaultDeliveryTimeout  = 120
)

// requiredKeys have no usable default; Validate reports every missing
// one at once so a misconfigured run fails with the full list.
var requiredKeys = []string{
	SenderAddressKey,
	AdminAddressKey,
	SourceEndpointKey,
	DestEndpointKey,
}

// Config is the fully parsed orchestrator configuration
type Config struct {
	LogLevel       string
	SenderAddress  ids.ID
	AdminAddress   ids.ID
	SourceEndpoint ids.ID
	DestEndpoint   ids.ID
	SourceRPCURL   string
	DestRPCURL     string
	GuardianAPIURL string
	ExecutorAPIURL string
	ExplorerURL    string
	Greeting       string
	GasLimit       uint64

	SignatureTimeout time.Duration
	RelayTimeout     time.Duration
	DeliveryTimeout  time.Duration
}

// BuildViper reads configuration from COURIER_* environment variables,
// with command line flags taking precedence
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}
	setDefaults(v)
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(SourceRPCURLKey, defaultSourceRPCURL)
	v.SetDefault(DestRPCURLKey, defaultDestRPCURL)
	v.SetDefault(GuardianAPIURLKey, defaultGuardianAPIURL)
	v.SetDefault(ExecutorAPIURLKey, defaultExecutorAPIURL)
	v.SetDefault(ExplorerURLKey, defaultExplorerURL)
	v.SetDefault(GreetingKey, defaultGreeting)
	v.SetDefault(GasLimitKey, defaultGasLimit)
	v.SetDefault(SignatureTimeoutKey, defaultSignatureTimeout)
	v.SetDefault(RelayTimeoutKey, defaultRelayTimeout)
	v.SetDefault(DeliveryTimeoutKey, defaultDeliveryTimeout)
}

// NewConfig builds and validates the orchestrator configuration
func NewConfig(v *viper.Viper) (Config, error) {
	if err := validateRequired(v); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:         v.GetString(LogLevelKey),
		SourceRPCURL:     v.GetString(SourceRPCURLKey),
		DestRPCURL:       v.GetString(DestRPCURLKey),
		GuardianAPIURL:   v.GetString(GuardianAPIURLKey),
		ExecutorAPIURL:   v.GetString(ExecutorAPIURLKey),
		ExplorerURL:      v.GetString(ExplorerURLKey),
		Greeting:         v.GetString(GreetingKey),
		GasLimit:         v.GetUint64(GasLimitKey),
		SignatureTimeout: time.Duration(v.GetUint64(SignatureTimeoutKey)) * time.Second,
		RelayTimeout:     time.Duration(v.GetUint64(RelayTimeoutKey)) * time.Second,
		DeliveryTimeout:  time.Duration(v.GetUint64(DeliveryTimeoutKey)) * time.Second,
	}

	var err error
	if cfg.SenderAddress, err = parseAddress(v.GetString(SenderAddressKey)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", SenderAddressKey, err)
	}
	if cfg.AdminAddress, err = parseAddress(v.GetString(AdminAddressKey)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", AdminAddressKey, err)
	}
	if cfg.SourceEndpoint, err = parseAddress(v.GetString(SourceEndpointKey)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", SourceEndpointKey, err)
	}
	if cfg.DestEndpoint, err = parseAddress(v.GetString(DestEndpointKey)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", DestEndpointKey, err)
	}
	return cfg, nil
}

// validateRequired reports all missing required settings in one error
func validateRequired(v *viper.Viper) error {
	var missing []string
	for _, key := range requiredKeys {
		if v.GetString(key) == "" {
			missing = append(missing, fmt.Sprintf("%s_%s",
				EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, "-", "_"))))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseAddress(s string) (ids.ID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ids.Empty, err
	}
	var id ids.ID
	if len(b) != len(id) {
		return ids.Empty, fmt.Errorf("expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
