// Package config collects the parameters needed to bring up one rank
// of a table server process: its identity, its peers, its queue
// admission policy, and where it persists durable shards and
// checkpoints.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anhdinh/lapis-go/pkg/tlsutil"
	"github.com/anhdinh/lapis-go/pkg/types"
)

// Config configures one rank's Runtime.
type Config struct {
	// Self is this process's rank. Rank WorldSize()-1 is always the
	// coordinator, per pkg/types.Coordinator.
	Self types.Rank

	// Addrs maps every rank, including Self, to its listen address.
	Addrs map[types.Rank]string

	// Sync selects SyncQueue's blocking admission policy over the
	// default AsyncQueue round robin.
	Sync bool

	// NumLocalFIFOs sizes the request queue's per-server admission
	// FIFOs; it should match the largest table's shard count.
	NumLocalFIFOs int

	// QueueSleep is how long a NextRequest poll sleeps between empty
	// scans, and the AwaitQuiescent poll interval.
	QueueSleep time.Duration

	// DataDir is where durable shard partitions and checkpoint logs
	// are written. Required if any table is Durable.
	DataDir string

	// LogDir, if set, switches logging from stderr to a rotating log
	// file under this directory (see pkg/xlog/rotate). Empty leaves
	// the default stderr formatter in place.
	LogDir string

	// LogRotateBytes caps a log file's size before rotate.NewFormatter
	// cuts over to a new file. Zero disables size-based rotation.
	LogRotateBytes int64

	// TLSInfo, if its CertFile/KeyFile are set, runs the fabric over
	// TLS instead of plain HTTP (mutual when TrustedCAFile or
	// ClientCertAuth is set).
	TLSInfo tlsutil.TLSInfo
}

func (c *Config) validate() error {
	if len(c.Addrs) == 0 {
		return errors.New("config: no addresses configured")
	}
	if _, ok := c.Addrs[c.Self]; !ok {
		return fmt.Errorf("config: self rank %s has no address in Addrs", c.Self)
	}
	if c.NumLocalFIFOs <= 0 {
		return fmt.Errorf("config: NumLocalFIFOs (%d) must be greater than 0", c.NumLocalFIFOs)
	}
	return nil
}

// wireConfig is Config's JSON-serializable shape: types.Rank keys
// don't round-trip as JSON object keys directly, so FromFile/FromEnv
// read them as decimal strings.
type wireConfig struct {
	Self           int32             `json:"self"`
	Addrs          map[string]string `json:"addrs"`
	Sync           bool              `json:"sync"`
	NumLocalFIFOs  int               `json:"num_local_fifos"`
	QueueSleepMS   int               `json:"queue_sleep_ms"`
	DataDir        string            `json:"data_dir"`
	LogDir         string            `json:"log_dir"`
	LogRotateBytes int64             `json:"log_rotate_bytes"`
	TLSCertFile    string            `json:"tls_cert_file"`
	TLSKeyFile     string            `json:"tls_key_file"`
	TLSTrustedCA   string            `json:"tls_trusted_ca_file"`
}

// Default returns a single-rank, in-memory, async configuration
// suitable for local experimentation.
func Default(self types.Rank, addrs map[types.Rank]string) Config {
	return Config{
		Self:          self,
		Addrs:         addrs,
		NumLocalFIFOs: 1,
		QueueSleep:    time.Millisecond,
	}
}

// FromFile reads a JSON configuration from path.
func FromFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parse(b)
}

// FromEnv builds a Config from LAPIS_CONFIG, a JSON document with the
// same shape FromFile reads.
func FromEnv() (Config, error) {
	raw := os.Getenv("LAPIS_CONFIG")
	if raw == "" {
		return Config{}, errors.New("config: LAPIS_CONFIG is not set")
	}
	return parse([]byte(raw))
}

func parse(b []byte) (Config, error) {
	var w wireConfig
	if err := json.Unmarshal(b, &w); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	addrs := make(map[types.Rank]string, len(w.Addrs))
	for k, v := range w.Addrs {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return Config{}, fmt.Errorf("config: addrs key %q is not a rank: %w", k, err)
		}
		addrs[types.Rank(n)] = v
	}
	c := Config{
		Self:           types.Rank(w.Self),
		Addrs:          addrs,
		Sync:           w.Sync,
		NumLocalFIFOs:  w.NumLocalFIFOs,
		QueueSleep:     time.Duration(w.QueueSleepMS) * time.Millisecond,
		DataDir:        w.DataDir,
		LogDir:         w.LogDir,
		LogRotateBytes: w.LogRotateBytes,
		TLSInfo: tlsutil.TLSInfo{
			CertFile:      w.TLSCertFile,
			KeyFile:       w.TLSKeyFile,
			TrustedCAFile: w.TLSTrustedCA,
		},
	}
	if c.NumLocalFIFOs <= 0 {
		c.NumLocalFIFOs = 1
	}
	if c.QueueSleep <= 0 {
		c.QueueSleep = time.Millisecond
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
