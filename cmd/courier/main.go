// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxfi/courier"
	"github.com/luxfi/courier/endpoint"
	"github.com/luxfi/courier/executor"
	"github.com/luxfi/courier/guardian"
	"github.com/luxfi/courier/orchestrator"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	demoSourceChain uint16 = 10002
	demoDestChain   uint16 = 10004

	demoGuardians  = 4
	demoMessageFee = 100
	demoRelayFee   = 1000
)

// Demo account and endpoint addresses. Arbitrary but fixed so repeated
// runs are comparable.
var (
	demoAdmin      = ids.ID{31: 0xAA}
	demoSender     = ids.ID{31: 0xA1}
	demoSourceAddr = ids.ID{31: 0x01}
	demoDestAddr   = ids.ID{31: 0x02}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier - peer-authenticated cross-chain message relay",
	Long: `Courier relays guardian-attested messages between chains through
peer-authenticated endpoints, with a paid executor network performing
the final delivery.

The demo command runs the entire flow in-process: two simulated chains,
a guardian network, an executor, and the orchestrator driving a
greeting from one chain to the other.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(statusCmd)

	demoCmd.Flags().String("guardian-addr", "127.0.0.1:8080", "guardian API listen address")
	demoCmd.Flags().String("executor-addr", "127.0.0.1:8081", "executor API listen address")
	demoCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "prometheus metrics listen address")

	quoteCmd.Flags().String("executor-url", "http://127.0.0.1:8081", "executor API base URL")
	quoteCmd.Flags().Uint16("src", demoSourceChain, "source chain ID")
	quoteCmd.Flags().Uint16("dst", demoDestChain, "destination chain ID")
	quoteCmd.Flags().Uint64("gas-limit", 250_000, "requested gas limit on the destination chain")

	statusCmd.Flags().String("executor-url", "http://127.0.0.1:8081", "executor API base URL")
	statusCmd.Flags().Uint16("chain", demoSourceChain, "source chain ID")
	statusCmd.Flags().String("tx", "", "source transaction hash")
	_ = statusCmd.MarkFlagRequired("tx")
}

func newLogger(name, levelStr string) (log.Logger, error) {
	level, err := log.ToLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return log.NewLogger(
		name,
		*log.NewWrappedCore(level, os.Stdout, log.JSON.ConsoleEncoder()),
	), nil
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the full greeting flow on simulated chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		guardianAddr, _ := cmd.Flags().GetString("guardian-addr")
		executorAddr, _ := cmd.Flags().GetString("executor-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		v, err := orchestrator.BuildViper(nil)
		if err != nil {
			return err
		}
		seedDemoDefaults(v)
		v.Set(orchestrator.GuardianAPIURLKey, "http://"+guardianAddr)
		v.Set(orchestrator.ExecutorAPIURLKey, "http://"+executorAddr)

		cfg, err := orchestrator.NewConfig(v)
		if err != nil {
			return err
		}

		logger, err := newLogger("courier", cfg.LogLevel)
		if err != nil {
			return err
		}

		report, err := runDemo(cmd.Context(), logger, cfg, guardianAddr, executorAddr, metricsAddr)
		if report != nil {
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
		}
		if err != nil {
			cmd.SilenceUsage = true
			if report != nil && report.Status == orchestrator.StatusIncomplete {
				os.Exit(2)
			}
			return err
		}
		return nil
	},
}

// seedDemoDefaults fills the required settings the demo can pick
// itself, leaving any caller-set environment values in place
func seedDemoDefaults(v *viper.Viper) {
	v.SetDefault(orchestrator.SenderAddressKey, hex.EncodeToString(demoSender[:]))
	v.SetDefault(orchestrator.AdminAddressKey, hex.EncodeToString(demoAdmin[:]))
	v.SetDefault(orchestrator.SourceEndpointKey, hex.EncodeToString(demoSourceAddr[:]))
	v.SetDefault(orchestrator.DestEndpointKey, hex.EncodeToString(demoDestAddr[:]))
}

func runDemo(
	ctx context.Context,
	logger log.Logger,
	cfg orchestrator.Config,
	guardianAddr, executorAddr, metricsAddr string,
) (*orchestrator.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := prometheus.NewRegistry()

	// Guardian set and per-guardian signers
	signers := make([]courier.Signer, demoGuardians)
	pks := make([]*bls.PublicKey, demoGuardians)
	for i := range signers {
		sk, err := bls.NewSecretKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate guardian key: %w", err)
		}
		signers[i] = courier.NewSigner(sk, demoSourceChain)
		pks[i] = sk.PublicKey()
	}
	set, err := courier.NewGuardianSet(0, pks)
	if err != nil {
		return nil, err
	}

	// Two simulated chains
	srcCore := endpoint.New(logger, endpoint.Config{
		ChainID:    demoSourceChain,
		MessageFee: uint256.NewInt(demoMessageFee),
		Guardians:  set,
	})
	dstCore := endpoint.New(logger, endpoint.Config{
		ChainID:    demoDestChain,
		MessageFee: uint256.NewInt(demoMessageFee),
		Guardians:  set,
	})
	srcCore.Credit(cfg.SenderAddress, uint256.NewInt(1_000_000))

	srcHello, err := endpoint.NewHello(logger, srcCore, endpoint.HelloConfig{
		Address:     cfg.SourceEndpoint,
		Admin:       cfg.AdminAddress,
		Consistency: courier.ConsistencyInstant,
		Replay:      endpoint.ReplayByHash,
	})
	if err != nil {
		return nil, err
	}
	dstHello, err := endpoint.NewHello(logger, dstCore, endpoint.HelloConfig{
		Address:     cfg.DestEndpoint,
		Admin:       cfg.AdminAddress,
		Consistency: courier.ConsistencyInstant,
		Replay:      endpoint.ReplayByHash,
	})
	if err != nil {
		return nil, err
	}

	// Guardian network and API
	guardians := guardian.NewNetwork(logger, set, guardian.NewMetrics(registry))
	go func() {
		if err := guardians.Watch(ctx, srcCore, signers); err != nil && ctx.Err() == nil {
			logger.Error("guardian watcher stopped", log.Err(err))
		}
	}()
	go serveHTTP(logger, guardianAddr, guardian.NewRouter(logger, guardians))

	// Executor and API
	quoterSK, err := bls.NewSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate executor key: %w", err)
	}
	exec := executor.New(
		logger,
		executor.NewQuoter(quoterSK, map[uint16]executor.Pricing{
			demoDestChain: {BaseFee: uint256.NewInt(demoRelayFee), GasPrice: uint256.NewInt(0)},
		}),
		guardian.NewClient(logger, cfg.GuardianAPIURL),
		map[uint16]executor.Destination{
			demoDestChain: {Core: dstCore, Integration: dstHello},
		},
		executor.NewMetrics(registry),
	)
	go func() {
		if err := exec.Run(ctx, srcCore); err != nil && ctx.Err() == nil {
			logger.Error("executor stopped", log.Err(err))
		}
	}()
	go serveHTTP(logger, executorAddr, executor.NewRouter(logger, exec))

	// Metrics
	go serveHTTP(logger, metricsAddr, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	o := orchestrator.New(logger, cfg, orchestrator.Chains{
		SourceCore: srcCore,
		SourceApp:  srcHello,
		DestCore:   dstCore,
		DestApp:    dstHello,
	})
	return o.Run(ctx)
}

func serveHTTP(logger log.Logger, addr string, handler http.Handler) {
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("http server stopped", log.String("addr", addr), log.Err(err))
	}
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Request a relay quote from a running executor",
	RunE: func(cmd *cobra.Command, args []string) error {
		executorURL, _ := cmd.Flags().GetString("executor-url")
		src, _ := cmd.Flags().GetUint16("src")
		dst, _ := cmd.Flags().GetUint16("dst")
		gasLimit, _ := cmd.Flags().GetUint64("gas-limit")

		client := executor.NewClient(log.NoLog{}, executorURL)
		quote, err := client.RequestQuote(cmd.Context(), src, dst, executor.RelayInstructions{
			GasLimit: uint256.NewInt(gasLimit),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Estimated cost: %s\n", quote.EstimatedCost.Dec())
		fmt.Printf("Signed quote:   %s\n", hex.EncodeToString(quote.SignedQuote))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Look up the relay status of a source transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		executorURL, _ := cmd.Flags().GetString("executor-url")
		chain, _ := cmd.Flags().GetUint16("chain")
		txHex, _ := cmd.Flags().GetString("tx")

		txBytes, err := hex.DecodeString(strings.TrimPrefix(txHex, "0x"))
		if err != nil || len(txBytes) != common.HashLength {
			return fmt.Errorf("invalid transaction hash %q", txHex)
		}

		client := executor.NewClient(log.NoLog{}, executorURL)
		status, err := client.Status(cmd.Context(), chain, common.BytesToHash(txBytes))
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
