package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cian-crawler/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "pages", cfg.PagesDir)
	assert.Equal(t, 60, cfg.FinalPage)
	assert.Equal(t, "2:spb,4897:novosibirsk", cfg.Regions)
	assert.Equal(t, 5, cfg.SettleSeconds)
	assert.Equal(t, 10, cfg.PageSettleSeconds)
	assert.False(t, cfg.StrictOffers)
	assert.Equal(t, 30, cfg.ProcessedTTLDays)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PAGES_DIR", "/var/spool/pages")
	t.Setenv("FINAL_PAGE", "5")
	t.Setenv("STRICT_OFFERS", "true")
	t.Setenv("REGIONS", "1:moscow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/spool/pages", cfg.PagesDir)
	assert.Equal(t, 5, cfg.FinalPage)
	assert.True(t, cfg.StrictOffers)
	assert.Equal(t, "1:moscow", cfg.Regions)
}

func TestRegionListPreservesOrder(t *testing.T) {
	cfg := &Config{Regions: "2:spb, 4897:novosibirsk ,77:moscow"}

	regions, err := cfg.RegionList()
	require.NoError(t, err)

	assert.Equal(t, []domain.Region{
		{Code: 2, City: "spb"},
		{Code: 4897, City: "novosibirsk"},
		{Code: 77, City: "moscow"},
	}, regions)
}

func TestRegionListMalformed(t *testing.T) {
	tests := []struct {
		name    string
		regions string
	}{
		{"missing city", "2:spb,4897"},
		{"non-numeric code", "abc:spb"},
		{"empty city", "2:"},
		{"empty list", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Regions: tt.regions}
			_, err := cfg.RegionList()
			assert.Error(t, err)
		})
	}
}

func TestProxyList(t *testing.T) {
	cfg := &Config{Proxies: "http://p1:8000, http://p2:8000,"}
	assert.Equal(t, []string{"http://p1:8000", "http://p2:8000"}, cfg.ProxyList())

	cfg = &Config{Proxies: ""}
	assert.Empty(t, cfg.ProxyList())
}
