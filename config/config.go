// Package config defines the routing core's configuration surface (spec
// §6) and its startup validation (spec §7: "configuration errors detected
// at init ... are fatal at startup"). The core library itself always takes
// a plain Config value constructed by the embedding application — never a
// process-wide singleton — per the teacher's "no static state" redesign
// note (spec §9). Load additionally demonstrates the layered
// viper-style config pattern used broadly across the retrieval pack, for
// cmd/lorasim's YAML-plus-environment harness config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/cost"
	"github.com/kabili207/lorance/core/health"
	"github.com/kabili207/lorance/core/routeproc"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/trickle"
	"github.com/kabili207/lorance/device/forwarder"
)

// Security configures the optional HELLO-authentication extension
// described in SPEC_FULL's domain-stack wiring for core/wire/auth.go.
type Security struct {
	SignHellos bool
	PrivateKeyHex string // 64-char hex-encoded Ed25519 seed, required when SignHellos
}

// TrickleConfig mirrors spec §6's helloTrickle config group.
type TrickleConfig struct {
	IMin        time.Duration
	IMax        time.Duration
	K           int
	SuppressCap int
	SafetyInterval time.Duration
}

// HealthConfig mirrors spec §6's health config group.
type HealthConfig struct {
	WarningSilence time.Duration
	FaultSilence   time.Duration
}

// Limits mirrors spec §6's limits config group.
type Limits struct {
	RTMaxSize  int
	HopMax     uint8
	DefaultTTL uint8
	ETXWindow  int
}

// Config is the core routing-engine configuration, per spec §6.
type Config struct {
	Mode         routeproc.Mode
	Role         address.Role
	LocalAddress address.Address

	Trickle     TrickleConfig
	Health      HealthConfig
	CostWeights cost.Weights
	Limits      Limits
	Security    Security
}

// Default returns a Config with every default named in spec §4-§6.
func Default() Config {
	return Config{
		Mode:         routeproc.ModeCost,
		LocalAddress: address.None,
		Trickle: TrickleConfig{
			IMin:           trickle.DefaultIMin,
			IMax:           trickle.DefaultIMax,
			K:              trickle.DefaultK,
			SuppressCap:    trickle.DefaultSuppressCap,
			SafetyInterval: 180 * time.Second,
		},
		Health: HealthConfig{
			WarningSilence: health.DefaultWarningSilence,
			FaultSilence:   health.DefaultFaultSilence,
		},
		CostWeights: cost.DefaultWeights(),
		Limits: Limits{
			RTMaxSize:  routetable.DefaultMaxSize,
			HopMax:     routetable.DefaultHopMax,
			DefaultTTL: forwarder.DefaultTTL,
			ETXWindow:  8,
		},
	}
}

// Validate checks the configuration against spec §7's fatal-at-startup
// rules: "SAFETY_INTERVAL <= 0, I_min > I_max, weights negative". Returns
// the first violation found, wrapped with context.
func (c Config) Validate() error {
	if c.LocalAddress == address.None || c.LocalAddress == address.Broadcast {
		return fmt.Errorf("config: LocalAddress must not be None or Broadcast, got %s", c.LocalAddress)
	}
	if c.Trickle.SafetyInterval <= 0 {
		return fmt.Errorf("config: Trickle.SafetyInterval must be > 0, got %s", c.Trickle.SafetyInterval)
	}
	if c.Trickle.IMin <= 0 || c.Trickle.IMax <= 0 {
		return fmt.Errorf("config: Trickle.IMin and IMax must be > 0")
	}
	if c.Trickle.IMin > c.Trickle.IMax {
		return fmt.Errorf("config: Trickle.IMin (%s) must not exceed IMax (%s)", c.Trickle.IMin, c.Trickle.IMax)
	}
	if c.Trickle.K <= 0 {
		return fmt.Errorf("config: Trickle.K must be > 0, got %d", c.Trickle.K)
	}
	if c.Health.WarningSilence <= 0 || c.Health.FaultSilence <= 0 {
		return fmt.Errorf("config: Health.WarningSilence and FaultSilence must be > 0")
	}
	if c.Health.WarningSilence >= c.Health.FaultSilence {
		return fmt.Errorf("config: Health.WarningSilence (%s) must be less than FaultSilence (%s)", c.Health.WarningSilence, c.Health.FaultSilence)
	}
	w := c.CostWeights
	for name, v := range map[string]float64{
		"W1": w.W1, "W2": w.W2, "W3": w.W3, "W4": w.W4, "W5": w.W5,
		"WeakPenalty": w.WeakPenalty,
	} {
		if v < 0 {
			return fmt.Errorf("config: CostWeights.%s must be >= 0, got %v", name, v)
		}
	}
	if w.ReplaceHysteresis <= 0 || w.ReplaceHysteresis > 1 {
		return fmt.Errorf("config: CostWeights.ReplaceHysteresis must be in (0, 1], got %v", w.ReplaceHysteresis)
	}
	if w.AddHopHysteresis <= 0 || w.AddHopHysteresis > 1 {
		return fmt.Errorf("config: CostWeights.AddHopHysteresis must be in (0, 1], got %v", w.AddHopHysteresis)
	}
	if c.Limits.RTMaxSize <= 0 {
		return fmt.Errorf("config: Limits.RTMaxSize must be > 0, got %d", c.Limits.RTMaxSize)
	}
	if c.Limits.HopMax < 1 {
		return fmt.Errorf("config: Limits.HopMax must be >= 1, got %d", c.Limits.HopMax)
	}
	if c.Limits.DefaultTTL < 1 {
		return fmt.Errorf("config: Limits.DefaultTTL must be >= 1, got %d", c.Limits.DefaultTTL)
	}
	if c.Security.SignHellos && c.Security.PrivateKeyHex == "" {
		return fmt.Errorf("config: Security.PrivateKeyHex is required when SignHellos is set")
	}
	return nil
}

// Load reads a Config for cmd/lorasim from a YAML file plus LORASIM_*
// environment overrides, using github.com/spf13/viper exactly as the
// ecosystem pattern the rest of the retrieval pack uses for layered CLI
// config (the core library itself never does this — see package doc).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LORASIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("mode", "cost")
	v.SetDefault("localAddress", "0x0000")
	v.SetDefault("trickle.imin", cfg.Trickle.IMin.String())
	v.SetDefault("trickle.imax", cfg.Trickle.IMax.String())
	v.SetDefault("trickle.k", cfg.Trickle.K)
	v.SetDefault("trickle.suppresscap", cfg.Trickle.SuppressCap)
	v.SetDefault("trickle.safetyinterval", cfg.Trickle.SafetyInterval.String())
	v.SetDefault("health.warningsilence", cfg.Health.WarningSilence.String())
	v.SetDefault("health.faultsilence", cfg.Health.FaultSilence.String())
	v.SetDefault("limits.rtmaxsize", cfg.Limits.RTMaxSize)
	v.SetDefault("limits.hopmax", cfg.Limits.HopMax)
	v.SetDefault("limits.defaultttl", cfg.Limits.DefaultTTL)
	v.SetDefault("security.signhellos", cfg.Security.SignHellos)
	v.SetDefault("security.privatekeyhex", cfg.Security.PrivateKeyHex)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	addr, err := address.ParseHex(v.GetString("localAddress"))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.LocalAddress = addr

	switch strings.ToLower(v.GetString("mode")) {
	case "flood":
		cfg.Mode = routeproc.ModeFlood
	case "hopcount":
		cfg.Mode = routeproc.ModeHopCount
	case "cost", "":
		cfg.Mode = routeproc.ModeCost
	default:
		return Config{}, fmt.Errorf("config: unknown mode %q", v.GetString("mode"))
	}

	cfg.Trickle.IMin = v.GetDuration("trickle.imin")
	cfg.Trickle.IMax = v.GetDuration("trickle.imax")
	cfg.Trickle.K = v.GetInt("trickle.k")
	cfg.Trickle.SuppressCap = v.GetInt("trickle.suppresscap")
	cfg.Trickle.SafetyInterval = v.GetDuration("trickle.safetyinterval")
	cfg.Health.WarningSilence = v.GetDuration("health.warningsilence")
	cfg.Health.FaultSilence = v.GetDuration("health.faultsilence")
	cfg.Limits.RTMaxSize = v.GetInt("limits.rtmaxsize")
	cfg.Limits.HopMax = uint8(v.GetUint32("limits.hopmax"))
	cfg.Limits.DefaultTTL = uint8(v.GetUint32("limits.defaultttl"))
	cfg.Security.SignHellos = v.GetBool("security.signhellos")
	cfg.Security.PrivateKeyHex = v.GetString("security.privatekeyhex")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
