package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys of the settings that can be overridden from the environment or the
// command line.
const (
	keyHost          = "exporter.host"
	keyPort          = "exporter.port"
	keyLogLevel      = "exporter.log_level"
	keyLogFormat     = "exporter.log_format"
	keyRedisURL      = "redis.url"
	keyRedisHost     = "redis.host"
	keyRedisPort     = "redis.port"
	keyRedisDB       = "redis.db"
	keyRedisPass     = "redis.pass"
	keyRedisPassFile = "redis.pass_file"
)

type binding struct {
	key   string
	flag  string
	env   string
	usage string
	isInt bool
}

var bindings = []binding{
	{key: keyHost, flag: "host", env: "RQ_EXPORTER_HOST", usage: "Address the exporter listens on (default 0.0.0.0)"},
	{key: keyPort, flag: "port", env: "RQ_EXPORTER_PORT", usage: "Port the exporter listens on (default 9726)"},
	{key: keyLogLevel, flag: "log-level", env: "RQ_EXPORTER_LOG_LEVEL", usage: "Log level: debug, info, warn, error (default info)"},
	{key: keyLogFormat, flag: "log-format", env: "RQ_EXPORTER_LOG_FORMAT", usage: "Log format: json or text (default json)"},
	{key: keyRedisURL, flag: "redis-url", env: "RQ_REDIS_URL", usage: "Redis URL, overrides host, port, db and password"},
	{key: keyRedisHost, flag: "redis-host", env: "RQ_REDIS_HOST", usage: "Redis host (default localhost)"},
	{key: keyRedisPort, flag: "redis-port", env: "RQ_REDIS_PORT", usage: "Redis port (default 6379)", isInt: true},
	{key: keyRedisDB, flag: "redis-db", env: "RQ_REDIS_DB", usage: "Redis database number (default 0)", isInt: true},
	{key: keyRedisPass, flag: "redis-pass", env: "RQ_REDIS_PASS", usage: "Redis password"},
	{key: keyRedisPassFile, flag: "redis-pass-file", env: "RQ_REDIS_PASS_FILE", usage: "File holding the Redis password, overrides --redis-pass"},
}

// cliOptions holds the parsed command line. Overridable settings live in v,
// which resolves flags before environment variables.
type cliOptions struct {
	configFile string
	debug      bool
	v          *viper.Viper
	flags      *pflag.FlagSet
}

func newCLIOptions() *cliOptions {
	return &cliOptions{v: viper.New()}
}

// registerFlags declares one flag per binding and binds it, together with its
// environment variable, to the viper key.
func (o *cliOptions) registerFlags(flags *pflag.FlagSet) {
	o.flags = flags
	for _, b := range bindings {
		if b.isInt {
			flags.Int(b.flag, 0, b.usage)
		} else {
			flags.String(b.flag, "", b.usage)
		}
		checkNoErr(o.v.BindPFlag(b.key, flags.Lookup(b.flag)))
		checkNoErr(o.v.BindEnv(b.key, b.env))
	}
}

// overlay copies every setting given on the command line or in the
// environment into cfg. Unset flags and empty variables leave cfg untouched.
func (o *cliOptions) overlay(cfg *models.Config) error {
	stringKeys := map[string]*string{
		keyHost:          &cfg.Server.Host,
		keyPort:          &cfg.Server.Port,
		keyLogLevel:      &cfg.Server.LogLevel,
		keyLogFormat:     &cfg.Server.LogFormat,
		keyRedisURL:      &cfg.Redis.URL,
		keyRedisHost:     &cfg.Redis.Host,
		keyRedisPassFile: &cfg.Redis.AuthFile,
	}
	for key, dst := range stringKeys {
		if o.v.IsSet(key) {
			*dst = o.v.GetString(key)
		}
	}

	intKeys := map[string]*int{
		keyRedisPort: &cfg.Redis.Port,
		keyRedisDB:   &cfg.Redis.DB,
	}
	for key, dst := range intKeys {
		if !o.v.IsSet(key) {
			continue
		}
		n, err := strconv.Atoi(o.v.GetString(key))
		if err != nil {
			return fmt.Errorf("invalid %s: %q is not an integer", o.source(key), o.v.GetString(key))
		}
		*dst = n
	}

	if o.v.IsSet(keyRedisPass) {
		pass := o.v.GetString(keyRedisPass)
		cfg.Redis.Auth = &pass
	}

	return nil
}

// source names the flag or environment variable a key was read from.
func (o *cliOptions) source(key string) string {
	for _, b := range bindings {
		if b.key != key {
			continue
		}
		if o.flags != nil && o.flags.Changed(b.flag) {
			return "--" + b.flag
		}
		return b.env
	}
	return key
}

func checkNoErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
