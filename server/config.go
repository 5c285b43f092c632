// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

package server

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/tensorops/regbot/registration"
)

const (
	defaultDbDirName       = "db"
	defaultLogDirname      = "logs"
	defaultMaxLogFiles     = 3
	defaultMaxLogFileSize  = 10
	defaultChainEndpoint   = "wss://entrypoint-finney.opentensor.ai:443"
	defaultMortalityPeriod = 256
)

// Config defines the configuration options for regbot.
//
// See regbotMain for further details regarding the
// configuration loading+parsing process.
type Config struct {
	RegbotDir      string  `long:"regbotdir"      description:"The base directory that contains regbot's data, logs and configuration file"`
	ConfigFile     string  `long:"configfile"     description:"Path to configuration file"                                                  short:"c"`
	DbDir          string  `long:"dbdir"          description:"The directory to store the attempt journal within"`
	LogDir         string  `long:"logdir"         description:"Directory to log output."`
	DebugLog       bool    `long:"debuglog"       description:"Enable debug logs"`
	JSONLog        bool    `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int     `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int     `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	MetricsPort    *uint16 `long:"metrics-port"   description:"The port to expose metrics"`

	CPUProfile string `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	Profile    string `long:"profile"    description:"Enable HTTP profiling on given port -- must be between 1024 and 65535"`

	Coldkey string `long:"coldkey" description:"Secret URI or mnemonic of the coldkey that signs and pays for registration"`
	Hotkey  string `long:"hotkey"  description:"Secret URI or mnemonic of the hotkey to register"`

	Chain        ChainConfig         `group:"Chain"`
	Registration registration.Config `group:"Registration"`
}

type ChainConfig struct {
	Endpoint        string `long:"chain-endpoint"   description:"URL of the substrate RPC endpoint"`
	MortalityPeriod uint64 `long:"mortality-period" description:"Blocks a submitted transaction stays valid before expiring"`
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	regbotDir := "./regbot"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		regbotDir = filepath.Join(cacheDir, "regbot")
	}

	return &Config{
		RegbotDir:      regbotDir,
		DbDir:          filepath.Join(regbotDir, defaultDbDirName),
		LogDir:         filepath.Join(regbotDir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		Chain: ChainConfig{
			Endpoint:        defaultChainEndpoint,
			MortalityPeriod: defaultMortalityPeriod,
		},
		Registration: registration.DefaultConfig(),
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	cfg.ConfigFile = cleanAndExpandPath(cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes the filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// If the provided regbot directory is not the default, we'll modify the
	// path to all of the files and directories that will live within it.
	defaultCfg := DefaultConfig()
	if cfg.RegbotDir != defaultCfg.RegbotDir {
		if cfg.DbDir == defaultCfg.DbDir {
			cfg.DbDir = filepath.Join(cfg.RegbotDir, defaultDbDirName)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.RegbotDir, defaultLogDirname)
		}
	}

	// Create the regbot directory if it doesn't already exist.
	cfg.RegbotDir = cleanAndExpandPath(cfg.RegbotDir)
	if err := os.MkdirAll(cfg.RegbotDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.RegbotDir, err)
	}

	// As soon as we're done parsing configuration options, ensure all paths
	// to directories and files are cleaned and expanded before attempting
	// to use them later on.
	cfg.DbDir = cleanAndExpandPath(cfg.DbDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
