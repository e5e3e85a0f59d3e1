// Package config loads the axlinkd YAML configuration file
// (SPEC_FULL.md §11), covering channel transmit-timing parameters,
// registered callsigns, timer defaults, and the KISS/metrics listen
// addresses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/la5nta/axlink/dlsm"
	"github.com/la5nta/axlink/txqueue"
	"github.com/la5nta/axlink/xid"
)

// Channel describes one physical radio channel's access timing and keying
// (SPEC_FULL.md §11).
type Channel struct {
	Name        string `yaml:"name"`
	Number      uint8  `yaml:"number"`
	TXDelayMs   int    `yaml:"txdelay_ms"`
	TXTailMs    int    `yaml:"txtail_ms"`
	DwaitMs     int    `yaml:"dwait_ms"`
	SlotTimeMs  int    `yaml:"slottime_ms"`
	Persist     int    `yaml:"persist"`
	FullDuplex  bool   `yaml:"full_duplex"`
	BitRateBps  int    `yaml:"bitrate_bps"`
	BundleMax   int    `yaml:"bundle_max"`

	SerialDevice string `yaml:"serial_device"`
	PTTLine      string `yaml:"ptt_line"` // "rts" or "dtr"
	RigctldAddr  string `yaml:"rigctld_addr"` // PTT via rigctld instead of a serial line
}

// Timers carries the DLSM's negotiable timer/window defaults
// (SPEC_FULL.md §11).
type Timers struct {
	FrackMs      int    `yaml:"frack_ms"`
	N2           int    `yaml:"n2"`
	MaxV22       int    `yaml:"maxv22"`
	T3Seconds    int    `yaml:"t3_seconds"`
	WindowMod8   int    `yaml:"window_mod8"`
	WindowMod128 int    `yaml:"window_mod128"`
	N1Paclen     int    `yaml:"n1_paclen"`
	SrejEnable   string `yaml:"srej_enable"` // "none", "single", "multi"
}

// KISSTCP configures the KISS-over-TCP listener.
type KISSTCP struct {
	Listen   string `yaml:"listen"`
	Capacity int    `yaml:"capacity"`
}

// KISSSerial configures a directly-attached hardware TNC's KISS port.
type KISSSerial struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Config is the top-level axlinkd configuration document.
type Config struct {
	Channels            []Channel    `yaml:"channels"`
	RegisteredCallsigns []string     `yaml:"registered_callsigns"`
	Timers              Timers       `yaml:"timers"`
	KISSTCP             *KISSTCP     `yaml:"kiss_tcp"`
	KISSSerial          *KISSSerial  `yaml:"kiss_serial"`
	MetricsListen       string       `yaml:"metrics_listen"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Timers.FrackMs == 0 {
		c.Timers.FrackMs = 3000
	}
	if c.Timers.N2 == 0 {
		c.Timers.N2 = 10
	}
	if c.Timers.MaxV22 == 0 {
		c.Timers.MaxV22 = 3
	}
	if c.Timers.T3Seconds == 0 {
		c.Timers.T3Seconds = 300
	}
	if c.Timers.WindowMod8 == 0 {
		c.Timers.WindowMod8 = 4
	}
	if c.Timers.WindowMod128 == 0 {
		c.Timers.WindowMod128 = 32
	}
	if c.Timers.N1Paclen == 0 {
		c.Timers.N1Paclen = 256
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.TXDelayMs == 0 {
			ch.TXDelayMs = 300
		}
		if ch.TXTailMs == 0 {
			ch.TXTailMs = 50
		}
		if ch.SlotTimeMs == 0 {
			ch.SlotTimeMs = 100
		}
		if ch.Persist == 0 {
			ch.Persist = 63
		}
		if ch.BitRateBps == 0 {
			ch.BitRateBps = 1200
		}
		if ch.BundleMax == 0 {
			ch.BundleMax = 4
		}
	}
}

func (c *Config) validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("config: at least one channel is required")
	}
	seen := make(map[uint8]bool)
	for _, ch := range c.Channels {
		if seen[ch.Number] {
			return fmt.Errorf("config: duplicate channel number %d", ch.Number)
		}
		seen[ch.Number] = true
	}
	return nil
}

// DLSMConfig converts the YAML timer block into a dlsm.Config.
func (t Timers) DLSMConfig() dlsm.Config {
	cfg := dlsm.DefaultConfig()
	cfg.Frack = time.Duration(t.FrackMs) * time.Millisecond
	cfg.N2 = t.N2
	cfg.MaxV22 = t.MaxV22
	cfg.T3Period = time.Duration(t.T3Seconds) * time.Second
	cfg.WindowMod8 = t.WindowMod8
	cfg.WindowMod128 = t.WindowMod128
	cfg.N1Paclen = t.N1Paclen
	switch t.SrejEnable {
	case "none":
		cfg.SrejEnable = xid.SrejNone
	case "single":
		cfg.SrejEnable = xid.SrejSingle
	default:
		cfg.SrejEnable = xid.SrejMulti
	}
	return cfg
}

// ApplyTiming copies a Channel entry's timing parameters onto tc. The
// keyer/carrier-sense and transmit collaborators are bound separately by
// the caller.
func (ch Channel) ApplyTiming(tc *txqueue.Channel) {
	tc.FullDuplex = ch.FullDuplex
	tc.TXDelayMs = ch.TXDelayMs
	tc.TXTailMs = ch.TXTailMs
	tc.DwaitMs = ch.DwaitMs
	tc.SlotTimeMs = ch.SlotTimeMs
	tc.Persist = uint8(ch.Persist)
	tc.BitRateBps = ch.BitRateBps
	tc.BundleMax = ch.BundleMax
}
