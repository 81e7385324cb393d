package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/lorance/core/address"
)

func validConfig() Config {
	cfg := Default()
	cfg.LocalAddress = address.Address(0x1234)
	return cfg
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsZeroLocalAddress(t *testing.T) {
	cfg := validConfig()
	cfg.LocalAddress = address.None
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveSafetyInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Trickle.SafetyInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsIMinGreaterThanIMax(t *testing.T) {
	cfg := validConfig()
	cfg.Trickle.IMin = cfg.Trickle.IMax + 1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsWarningSilenceNotLessThanFaultSilence(t *testing.T) {
	cfg := validConfig()
	cfg.Health.WarningSilence = cfg.Health.FaultSilence
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeWeight(t *testing.T) {
	cfg := validConfig()
	cfg.CostWeights.W1 = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeHysteresis(t *testing.T) {
	cfg := validConfig()
	cfg.CostWeights.ReplaceHysteresis = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.CostWeights.ReplaceHysteresis = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsSignHellosWithoutPrivateKey(t *testing.T) {
	cfg := validConfig()
	cfg.Security.SignHellos = true
	cfg.Security.PrivateKeyHex = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_ReadsYAMLAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("localAddress: \"0x2000\"\nmode: hopcount\ntrickle:\n  k: 2\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, address.Address(0x2000), cfg.LocalAddress)
	assert.Equal(t, 2, cfg.Trickle.K)
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("localAddress: \"0x2000\"\nmode: bogus\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsCollisionBandAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("localAddress: \"0x0000\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
