// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesValue(t *testing.T) {
	os.Setenv("AGENTHOST_TEST_VAR", "hello")
	defer os.Unsetenv("AGENTHOST_TEST_VAR")

	got := SubstituteEnvVars("prefix-${AGENTHOST_TEST_VAR}-suffix")
	assert.Equal(t, "prefix-hello-suffix", got)
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	os.Unsetenv("AGENTHOST_MISSING_VAR")
	got := SubstituteEnvVars("${AGENTHOST_MISSING_VAR:fallback}")
	assert.Equal(t, "fallback", got)
}

func TestSubstituteEnvVarsInConfigRewritesFields(t *testing.T) {
	os.Setenv("AGENTHOST_TEST_DSN", "postgres://example")
	defer os.Unsetenv("AGENTHOST_TEST_DSN")

	cfg := &Config{}
	cfg.Store.PostgresDSN = "${AGENTHOST_TEST_DSN}"
	SubstituteEnvVarsInConfig(cfg)
	assert.Equal(t, "postgres://example", cfg.Store.PostgresDSN)
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	os.Unsetenv("AGENTHOST_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())
}

func TestIsProductionReflectsEnv(t *testing.T) {
	os.Setenv("AGENTHOST_ENV", "production")
	defer os.Unsetenv("AGENTHOST_ENV")
	assert.True(t, IsProduction())
	assert.False(t, IsDevelopment())
}
