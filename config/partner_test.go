package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartnerConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("PAYITEM_PARTNER_URL", " https://partner.test/pay-items/ ")
	t.Setenv("PAYITEM_PARTNER_KEY", "secret")
	t.Setenv("PAYITEM_PARTNER_KEY_HEADER", "")
	t.Setenv("PAYITEM_PARTNER_TIMEOUT_SECONDS", "")
	t.Setenv("PAYITEM_SYNC_MAX_PAGES", "")

	cfg := PartnerConfigFromEnv()

	assert.Equal(t, "https://partner.test/pay-items/", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "x-api-key", cfg.KeyHeader)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.MaxPages)
}

func TestPartnerConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("PAYITEM_PARTNER_KEY_HEADER", "X-Partner-Key")
	t.Setenv("PAYITEM_PARTNER_TIMEOUT_SECONDS", "5")
	t.Setenv("PAYITEM_SYNC_MAX_PAGES", "250")

	cfg := PartnerConfigFromEnv()

	assert.Equal(t, "X-Partner-Key", cfg.KeyHeader)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 250, cfg.MaxPages)
}

func TestPartnerConfigFromEnv_NegativePagesMeansUnbounded(t *testing.T) {
	t.Setenv("PAYITEM_SYNC_MAX_PAGES", "-3")
	assert.Equal(t, 0, PartnerConfigFromEnv().MaxPages)
}

func TestPayItemWipeScope(t *testing.T) {
	cases := []struct {
		env      string
		expected string
	}{
		{"", WipeScopeUser},
		{"user", WipeScopeUser},
		{"Business", WipeScopeBusiness},
		{" business ", WipeScopeBusiness},
		{"garbage", WipeScopeUser},
	}
	for _, tc := range cases {
		t.Setenv("PAYITEM_SYNC_WIPE_SCOPE", tc.env)
		assert.Equal(t, tc.expected, PayItemWipeScope(), "env=%q", tc.env)
	}
}
