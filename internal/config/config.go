package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config defines behavior and resource limits for one peer process.
type Config struct {
	// ========== Networking ==========

	// Port is the TCP port this peer listens on for control messages.
	Port uint16

	// Friends is the initial friends list, "host:port" or bare-port
	// tokens as given on the command line or in the config file.
	Friends []string

	// DialTimeout is the maximum time to wait when opening the one-shot
	// connection a control message travels over.
	DialTimeout time.Duration

	// ReadTimeout bounds the single reply read on an outbound message and
	// the single request read on an accepted connection.
	ReadTimeout time.Duration

	// WriteTimeout bounds the single write of a message or its ACK.
	WriteTimeout time.Duration

	// ReadBufferSize is the size of the one-shot read buffer. A message
	// larger than this is silently truncated on the wire.
	ReadBufferSize int

	// ========== Work distribution ==========

	// KeepPercentage is the share of the search space the leader retains
	// as its own trailing part when first dividing a problem.
	KeepPercentage float64

	// WatchInterval is how often the leader pings its solving children.
	WatchInterval time.Duration

	// RedistributeInterval is how often the leader looks for waiting
	// children to hand unsearched ranges to.
	RedistributeInterval time.Duration

	// RedistributeBudget is the wall-clock time a redistributed part
	// should keep a child busy; together with the child's measured power
	// it bounds the part size.
	RedistributeBudget time.Duration

	// ResultRetryInterval is how long a child waits before re-sending an
	// unacknowledged solver result to its leader.
	ResultRetryInterval time.Duration

	// ========== Backup ==========

	// BackupWatchInterval is how often a backup child pings its leader.
	BackupWatchInterval time.Duration

	// ========== Miscellaneous ==========

	// BenchmarkDuration is how long the startup self-benchmark hashes for.
	BenchmarkDuration time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

func defaultConfig() Config {
	return Config{
		Port:                 9000,
		DialTimeout:          3 * time.Second,
		ReadTimeout:          3 * time.Second,
		WriteTimeout:         3 * time.Second,
		ReadBufferSize:       64 * 1024,
		KeepPercentage:       25.0,
		WatchInterval:        5 * time.Second,
		RedistributeInterval: 5 * time.Second,
		RedistributeBudget:   5 * time.Second,
		ResultRetryInterval:  2 * time.Second,
		BackupWatchInterval:  5 * time.Second,
		BenchmarkDuration:    time.Second,
	}
}

// FromFile overlays a YAML config file onto the defaults. Only keys present
// in the file are touched; flags applied afterwards win over both.
func FromFile(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}

	if v.IsSet("port") {
		c.Port = uint16(v.GetUint32("port"))
	}
	if v.IsSet("friends") {
		c.Friends = v.GetStringSlice("friends")
	}
	if v.IsSet("verbose") {
		c.Verbose = v.GetBool("verbose")
	}
	if v.IsSet("dial_timeout") {
		c.DialTimeout = v.GetDuration("dial_timeout")
	}
	if v.IsSet("read_timeout") {
		c.ReadTimeout = v.GetDuration("read_timeout")
	}
	if v.IsSet("write_timeout") {
		c.WriteTimeout = v.GetDuration("write_timeout")
	}
	if v.IsSet("watch_interval") {
		c.WatchInterval = v.GetDuration("watch_interval")
	}
	if v.IsSet("redistribute_interval") {
		c.RedistributeInterval = v.GetDuration("redistribute_interval")
	}
	if v.IsSet("backup_watch_interval") {
		c.BackupWatchInterval = v.GetDuration("backup_watch_interval")
	}

	return c, nil
}
