package config_test

import (
	"strings"
	"testing"

	"LendLedger/internal/config"
	"LendLedger/internal/event"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	market = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	owner  = uuid.MustParse("00000000-0000-0000-0000-00000000e001")
	dex    = uuid.MustParse("00000000-0000-0000-0000-00000000f001")
	sol    = uuid.MustParse("00000000-0000-0000-0000-00000000f002")
	usdc   = uuid.MustParse("00000000-0000-0000-0000-00000000f003")
)

func mustLoad(t *testing.T) *config.MarketFile {
	t.Helper()
	f, err := config.Load("testdata/markets.yaml")
	require.NoError(t, err)
	return f
}

// ============================================================================
// Loading
// ============================================================================

func TestLoad_SampleFile(t *testing.T) {
	f := mustLoad(t)
	require.Len(t, f.ExchangeMarkets, 1)
	require.Len(t, f.Markets, 1)
	require.Len(t, f.Markets[0].Reserves, 2)

	assert.Nil(t, f.Markets[0].Reserves[0].Config, "omitted config stays nil")
	solCfg := f.Markets[0].Reserves[1].Config
	require.NotNil(t, solCfg)
	assert.Equal(t, uint16(15000), solCfg.MinCollateralRatio)
	assert.Equal(t, uint16(20), solCfg.LoanOriginationFee)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("testdata/absent.yaml")
	require.Error(t, err)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "markets: []\nfoo: 1\n",
			want: "foo",
		},
		{
			name: "bad uuid",
			yaml: "markets:\n  - id: nope\n",
			want: "markets[0].id",
		},
		{
			name: "missing owner",
			yaml: "markets:\n  - id: " + market.String() + "\n    quote_mint: " + usdc.String() + "\n",
			want: "markets[0].owner is required",
		},
		{
			name: "negative price",
			yaml: marketYAML("      - token_mint: " + usdc.String() + "\n        price: \"-1\"\n"),
			want: "must be positive",
		},
		{
			name: "duplicate reserve",
			yaml: marketYAML("      - token_mint: " + usdc.String() + "\n      - token_mint: " + usdc.String() + "\n"),
			want: "already has a reserve",
		},
		{
			name: "exponent finer than fixed point",
			yaml: marketYAML("      - token_mint: " + usdc.String() + "\n        exponent: -18\n"),
			want: "reserves[0].exponent",
		},
		{
			name: "undefined dex market",
			yaml: marketYAML("      - token_mint: " + sol.String() + "\n        dex_market: " + dex.String() + "\n"),
			want: "is not defined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_ReserveConfigValidated(t *testing.T) {
	yaml := marketYAML("      - token_mint: " + usdc.String() + "\n" +
		"        config:\n" +
		"          utilization_rate_1: 9000\n" +
		"          utilization_rate_2: 8000\n")
	_, err := config.Parse([]byte(yaml))
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrInvalidParameter)
}

func marketYAML(reserves string) string {
	var b strings.Builder
	b.WriteString("markets:\n")
	b.WriteString("  - id: " + market.String() + "\n")
	b.WriteString("    owner: " + owner.String() + "\n")
	b.WriteString("    quote_mint: " + usdc.String() + "\n")
	b.WriteString("    reserves:\n")
	b.WriteString(reserves)
	return b.String()
}

// ============================================================================
// Conversions
// ============================================================================

func TestSimMarkets(t *testing.T) {
	sims, err := mustLoad(t).SimMarkets()
	require.NoError(t, err)
	require.Len(t, sims, 1)

	m := sims[0]
	assert.Equal(t, dex, m.ID)
	assert.Equal(t, sol, m.BaseMint)
	assert.Equal(t, usdc, m.QuoteMint)
	assert.Equal(t, uint64(100_000_000), m.CoinLotSize)
	assert.Equal(t, int32(-9), m.BaseExponent)
	assert.Equal(t, uint16(50), m.SlippageBps)
	assert.Equal(t, "16.25", m.Price.Decimal().String())
}

func TestBootstrapCommands(t *testing.T) {
	f := mustLoad(t)
	cmds, err := f.BootstrapCommands(func(uuid.UUID) uint64 { return 77 })
	require.NoError(t, err)
	require.Len(t, cmds, 5)

	initMarket, ok := cmds[0].(*event.InitMarket)
	require.True(t, ok, "first command is %T", cmds[0])
	assert.Equal(t, market, initMarket.Market)
	assert.Equal(t, owner, initMarket.Signer)
	assert.Equal(t, uint64(77), initMarket.Slot)
	assert.Equal(t, "USD", initMarket.QuoteCurrency)

	usdcInit := cmds[1].(*event.InitReserve)
	assert.Equal(t, state.DefaultReserveConfig(), usdcInit.Config)

	usdcPrice := cmds[2].(*event.RefreshReserve)
	assert.Equal(t, state.ReserveID(market, usdc), usdcPrice.Reserve)
	assert.Equal(t, uint64(1), usdcPrice.Price)
	assert.Equal(t, int32(0), usdcPrice.PriceExponent)

	solInit := cmds[3].(*event.InitReserve)
	assert.Equal(t, dex, solInit.DexMarket)
	assert.Equal(t, uint16(15000), solInit.Config.MinCollateralRatio)

	solPrice := cmds[4].(*event.RefreshReserve)
	assert.Equal(t, uint64(1625), solPrice.Price)
	assert.Equal(t, int32(-2), solPrice.PriceExponent)
}

func TestBootstrapCommands_StableIDs(t *testing.T) {
	f := mustLoad(t)
	first, err := f.BootstrapCommands(func(uuid.UUID) uint64 { return 1 })
	require.NoError(t, err)
	second, err := f.BootstrapCommands(func(uuid.UUID) uint64 { return 900 })
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := range first {
		assert.Equal(t, first[i].IdempotencyKey(), second[i].IdempotencyKey(), "command %d", i)
		assert.False(t, seen[first[i].IdempotencyKey()], "command %d reuses an id", i)
		seen[first[i].IdempotencyKey()] = true
	}

	f.Markets[0].Reserves[1].Price = "17"
	moved, err := f.BootstrapCommands(func(uuid.UUID) uint64 { return 1 })
	require.NoError(t, err)
	assert.Equal(t, first[3].IdempotencyKey(), moved[3].IdempotencyKey())
	assert.NotEqual(t, first[4].IdempotencyKey(), moved[4].IdempotencyKey(), "a new price is a new refresh")
}
