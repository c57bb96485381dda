package config

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

const (
	EnvMainnetBeta = "mainnet-beta"
	EnvMainnet     = "mainnet"
	EnvDevnet      = "devnet"
)

// Source labels used as sync_state keys and metric label values. The base
// layer is the persistent chain; the ephemeral layer is the low-latency
// rollup mirroring the same program.
const (
	SourceBase      = "base"
	SourceEphemeral = "ephemeral"
)

var (
	ErrInvalidEnvironment = fmt.Errorf("invalid environment")
)

type NetworkConfig struct {
	Moniker         string
	CanvasProgramID solana.PublicKey
	BaseRPCURL      string
	BaseWSURL       string
	EphemeralRPCURL string
	EphemeralWSURL  string
}

func NetworkConfigForEnv(env string) (*NetworkConfig, error) {
	var config *NetworkConfig
	switch env {
	case EnvMainnetBeta, EnvMainnet:
		programID, err := solana.PublicKeyFromBase58(MainnetCanvasProgramID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse canvas program ID: %w", err)
		}
		config = &NetworkConfig{
			Moniker:         EnvMainnetBeta,
			CanvasProgramID: programID,
			BaseRPCURL:      MainnetBaseRPCURL,
			BaseWSURL:       MainnetBaseWSURL,
			EphemeralRPCURL: MainnetEphemeralRPCURL,
			EphemeralWSURL:  MainnetEphemeralWSURL,
		}
	case EnvDevnet:
		programID, err := solana.PublicKeyFromBase58(DevnetCanvasProgramID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse canvas program ID: %w", err)
		}
		config = &NetworkConfig{
			Moniker:         EnvDevnet,
			CanvasProgramID: programID,
			BaseRPCURL:      DevnetBaseRPCURL,
			BaseWSURL:       DevnetBaseWSURL,
			EphemeralRPCURL: DevnetEphemeralRPCURL,
			EphemeralWSURL:  DevnetEphemeralWSURL,
		}
	default:
		return nil, ErrInvalidEnvironment
	}

	if v := os.Getenv("PLACE_BASE_RPC_URL"); v != "" {
		config.BaseRPCURL = v
	}
	if v := os.Getenv("PLACE_BASE_WS_URL"); v != "" {
		config.BaseWSURL = v
	}
	if v := os.Getenv("PLACE_EPHEMERAL_RPC_URL"); v != "" {
		config.EphemeralRPCURL = v
	}
	if v := os.Getenv("PLACE_EPHEMERAL_WS_URL"); v != "" {
		config.EphemeralWSURL = v
	}
	if v := os.Getenv("PLACE_PROGRAM_ID"); v != "" {
		programID, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PLACE_PROGRAM_ID: %w", err)
		}
		config.CanvasProgramID = programID
	}

	return config, nil
}
