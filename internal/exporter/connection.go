package exporter

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/fjacquet/rq_exporter/internal/rq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// redisDialer builds go-redis clients. Clients dial on first command.
type redisDialer struct{}

// NewRedisDialer returns the Dialer used outside of tests.
func NewRedisDialer() Dialer {
	return redisDialer{}
}

func (redisDialer) FromURL(url string) (rq.Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (redisDialer) New(params ConnParams) (rq.Store, error) {
	opts := &redis.Options{
		Addr: net.JoinHostPort(params.Host, strconv.Itoa(params.Port)),
		DB:   params.DB,
	}
	if params.Password != nil {
		opts.Password = *params.Password
	}
	return redis.NewClient(opts), nil
}

// ResolveConnection turns the Redis section of the configuration into a
// connection handle. Exactly one strategy applies, in this order:
//
//  1. URL set: the handle is built from the URL alone.
//  2. AuthFile set: the password is the file content without surrounding
//     whitespace. A read failure is fatal; Auth is not consulted.
//  3. Otherwise: Auth is used verbatim, nil meaning no password.
//
// A *PasswordFileError is returned when the password file cannot be read, a
// *StoreError when the dialer rejects the parameters.
func ResolveConnection(cfg models.RedisConfig, d Dialer) (rq.Store, error) {
	if cfg.URL != "" {
		log.Debug("Connecting to Redis from URL")
		store, err := d.FromURL(cfg.URL)
		if err != nil {
			return nil, &StoreError{Op: "parse url", Err: err}
		}
		return store, nil
	}

	password := cfg.Auth
	if cfg.AuthFile != "" {
		p, err := readPasswordFile(cfg.AuthFile)
		if err != nil {
			return nil, err
		}
		password = &p
	}

	log.Debugf("Connecting to Redis at %s:%d db %d", cfg.Host, cfg.Port, cfg.DB)
	store, err := d.New(ConnParams{
		Host:     cfg.Host,
		Port:     cfg.Port,
		DB:       cfg.DB,
		Password: password,
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}
	return store, nil
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &PasswordFileError{Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}
