// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package config is a singleton and provides global access to the
// configuration values.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/asch/jbod/internal/cache"
)

const (
	// Default config path. It does not need to exist, default values for all parameters will be
	// used instead.
	defaultConfig = "/etc/jbod/config.toml"
)

var Cfg Config

// Trace file given on the command line. Takes precedence over Cfg.Trace.
var traceFlag string

// Configuration structure for the program. We use toml format for file-based
// configuration and also all configuration options can be overriden by
// environment variable specified in this structure.
type Config struct {
	ConfigPath string

	Local bool   `toml:"local" env:"JBOD_LOCAL" env-default:"false" env-description:"Serve the disks from memory of this process instead of connecting to a server. For testing the client without network."`
	Trace string `toml:"trace" env:"JBOD_TRACE" env-default:"" env-description:"Trace file with operations to run. Empty means only mount and unmount."`

	Server struct {
		Host          string  `toml:"host" env:"JBOD_SERVER_HOST" env-description:"JBOD server address." env-default:"127.0.0.1"`
		Port          int     `toml:"port" env:"JBOD_SERVER_PORT" env-description:"JBOD server port." env-default:"3333"`
		DialTimeoutMs int64   `toml:"dial_timeout" env:"JBOD_SERVER_DIALTIMEOUT" env-description:"Timeout for connecting to the server. In ms, 0 means none." env-default:"5000"`
		Rate          float64 `toml:"rate" env:"JBOD_SERVER_RATE" env-description:"Maximal number of operations per second. 0 means unlimited." env-default:"0"`
		Burst         int     `toml:"burst" env:"JBOD_SERVER_BURST" env-description:"Number of operations allowed above the rate at once." env-default:"1"`
	} `toml:"server"`

	Cache struct {
		Size int `toml:"size" env:"JBOD_CACHE_SIZE" env-description:"Number of cached blocks. 0 disables the cache." env-default:"1024"`
	} `toml:"cache"`

	Log struct {
		Level  int  `toml:"level" env:"JBOD_LOG_LEVEL" env-description:"Log level." env-default:"1"`
		Pretty bool `toml:"pretty" env:"JBOD_LOG_PRETTY" env-description:"Pretty logging." env-default:"true"`
	} `toml:"log"`
}

// Configure reads commandline flags and the configuration. Values from the
// configuration file are overriden by environment variables, the trace flag
// overrides both. Any of the sources can be missing.
func Configure() error {
	flagSetup()
	err := parse()

	if traceFlag != "" {
		Cfg.Trace = traceFlag
	}

	return err
}

// Fills Cfg from the configuration file and the environment and validates
// the values which would be rejected later anyway.
func parse() error {
	if err := cleanenv.ReadConfig(Cfg.ConfigPath, &Cfg); err != nil {
		if err := cleanenv.ReadEnv(&Cfg); err != nil {
			return err
		}
	}

	if Cfg.Cache.Size != 0 && (Cfg.Cache.Size < cache.MinCapacity || Cfg.Cache.Size > cache.MaxCapacity) {
		return fmt.Errorf("cache size %d not in [%d, %d]", Cfg.Cache.Size, cache.MinCapacity, cache.MaxCapacity)
	}

	if Cfg.Server.Port <= 0 || Cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", Cfg.Server.Port)
	}

	return nil
}

// Handle program flags.
func flagSetup() {
	f := flag.NewFlagSet("jbod", flag.ExitOnError)
	f.StringVar(&Cfg.ConfigPath, "c", defaultConfig, "Path to configuration file")
	f.StringVar(&traceFlag, "t", "", "Path to trace file, overrides configuration")
	f.Usage = cleanenv.FUsage(f.Output(), &Cfg, nil, f.Usage)
	f.Parse(os.Args[1:])
}
