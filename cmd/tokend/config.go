package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/tokenchain/tokend/chain"
	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

const (
	defaultLogLevel               = "info"
	defaultSharedMemorySize       = 1 << 30 // 1 GiB
	defaultMaxTransactionLifetime = 60 * time.Second
)

func defaultHomeDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tokend")
	}
	return filepath.Join(home, ".tokend")
}

var defaultHomeDir = defaultHomeDirPath()

// config is tokend's process configuration, loaded by go-flags the same
// way config/config.go loads kaspad.conf: struct tags declare the flag
// name, default and usage string, parsed from the command line (no
// config file is read). Covers spec.md §6's store paths plus genesis
// and the ambient node options (log level, data dir) every teacher
// command carries.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir     string `long:"appdir" description:"Directory to store data"`
	LogLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems" default:"info"`

	SharedMemoryDir  string `long:"statedb" description:"Directory for the state DB" `
	SharedMemorySize int    `long:"statedbsize" description:"Byte capacity of the state DB"`
	ReadOnly         bool   `long:"readonly" description:"Read-only mode (parsed, but not applied to any store)"`
	BlockLogDir      string `long:"blocklog" description:"Directory for the append-only block log"`
	TokenDBDir       string `long:"tokendb" description:"Directory for the token DB"`

	GenesisKey       string        `long:"genesiskey" description:"Genesis producer public key"`
	GenesisTimestamp int64         `long:"genesistimestamp" description:"Genesis block unix timestamp"`
	MaxTrxLifetime   time.Duration `long:"maxtrxlifetime" description:"Maximum transaction expiration window"`
}

func defaultConfig() *config {
	return &config{
		HomeDir:          defaultHomeDir,
		LogLevel:         defaultLogLevel,
		SharedMemorySize: defaultSharedMemorySize,
		MaxTrxLifetime:   defaultMaxTransactionLifetime,
		GenesisTimestamp: time.Now().Unix(),
	}
}

// loadConfig parses command-line flags over the defaults, the same
// two-pass (defaults, then flags.Parse) shape config/config.go uses, and
// fills in directory defaults that depend on HomeDir.
func loadConfig() (*config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if cfg.SharedMemoryDir == "" {
		cfg.SharedMemoryDir = filepath.Join(cfg.HomeDir, "statedb")
	}
	if cfg.BlockLogDir == "" {
		cfg.BlockLogDir = filepath.Join(cfg.HomeDir, "blocklog")
	}
	if cfg.TokenDBDir == "" {
		cfg.TokenDBDir = filepath.Join(cfg.HomeDir, "tokendb")
	}
	if cfg.GenesisKey == "" {
		return nil, errors.New("loadConfig: --genesiskey is required")
	}
	if len(base58.Decode(cfg.GenesisKey)) == 0 {
		return nil, errors.Errorf("loadConfig: --genesiskey %q is not valid base58", cfg.GenesisKey)
	}

	if err := os.MkdirAll(cfg.HomeDir, 0700); err != nil {
		return nil, errors.Wrap(err, "loadConfig: creating app dir")
	}

	if err := logger.SetLogLevels(cfg.LogLevel); err != nil {
		return nil, errors.Wrap(err, "loadConfig: setting log level")
	}
	return cfg, nil
}

// genesis decodes GenesisKey from its command-line base58 form into the
// opaque PublicKey the controller carries internally (the same
// base58-on-the-wire, raw-bytes-internally split cmd/genaddr and
// cmd/addsubnetwork use for private keys).
func (cfg *config) genesis() chain.GenesisConfig {
	return chain.GenesisConfig{
		InitialKey:       model.PublicKey(base58.Decode(cfg.GenesisKey)),
		InitialTimestamp: time.Unix(cfg.GenesisTimestamp, 0).UTC(),
		Configuration: model.ChainConfiguration{
			MaxTransactionLifetime: cfg.MaxTrxLifetime,
		},
	}
}
