// Package config loads market definitions from YAML. A definition file lists
// the simulated exchange markets and the lending markets with their reserves;
// the service turns it into simulator markets and bootstrap commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"

	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid market config")

var decimalTen = big.NewInt(10)

// MarketFile is the root of a market definition file.
type MarketFile struct {
	ExchangeMarkets []ExchangeMarket `yaml:"exchange_markets"`
	Markets         []Market         `yaml:"markets"`
}

// ExchangeMarket configures one simulated order book. Price is quote tokens
// per base token as a decimal string.
type ExchangeMarket struct {
	ID            string `yaml:"id"`
	BaseMint      string `yaml:"base_mint"`
	QuoteMint     string `yaml:"quote_mint"`
	BaseExponent  int32  `yaml:"base_exponent"`
	QuoteExponent int32  `yaml:"quote_exponent"`
	CoinLotSize   uint64 `yaml:"coin_lot_size"`
	Price         string `yaml:"price"`
	SlippageBps   uint16 `yaml:"slippage_bps"`
	DepthLots     uint64 `yaml:"depth_lots"`
}

// Market is a lending market and the reserves it starts with.
type Market struct {
	ID            string    `yaml:"id"`
	Owner         string    `yaml:"owner"`
	QuoteMint     string    `yaml:"quote_mint"`
	QuoteCurrency string    `yaml:"quote_currency"`
	Reserves      []Reserve `yaml:"reserves"`
}

// Reserve is one reserve of a market. A missing config block uses
// state.DefaultReserveConfig; an empty price leaves the reserve unpriced.
type Reserve struct {
	TokenMint   string               `yaml:"token_mint"`
	Exponent    int32                `yaml:"exponent"`
	DexMarket   string               `yaml:"dex_market"`
	CoinLotSize uint64               `yaml:"coin_lot_size"`
	Price       string               `yaml:"price"`
	Config      *state.ReserveConfig `yaml:"config"`
}

// Load reads and validates a market definition file.
func Load(path string) (*MarketFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a market definition. Unknown keys are errors.
func Parse(data []byte) (*MarketFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f MarketFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks identifiers, prices and reserve parameters.
func (f *MarketFile) Validate() error {
	dexMarkets := make(map[uuid.UUID]ExchangeMarket, len(f.ExchangeMarkets))
	for i, em := range f.ExchangeMarkets {
		id, err := parseID(fmt.Sprintf("exchange_markets[%d].id", i), em.ID)
		if err != nil {
			return err
		}
		if _, dup := dexMarkets[id]; dup {
			return fmt.Errorf("%w: exchange market %s listed twice", ErrInvalidConfig, id)
		}
		if _, err := parseID(fmt.Sprintf("exchange_markets[%d].base_mint", i), em.BaseMint); err != nil {
			return err
		}
		if _, err := parseID(fmt.Sprintf("exchange_markets[%d].quote_mint", i), em.QuoteMint); err != nil {
			return err
		}
		if em.CoinLotSize == 0 {
			return fmt.Errorf("%w: exchange market %s: coin_lot_size is required", ErrInvalidConfig, id)
		}
		if err := state.ValidateTokenExponent(em.BaseExponent); err != nil {
			return fmt.Errorf("%w: exchange market %s: base_exponent: %v", ErrInvalidConfig, id, err)
		}
		if err := state.ValidateTokenExponent(em.QuoteExponent); err != nil {
			return fmt.Errorf("%w: exchange market %s: quote_exponent: %v", ErrInvalidConfig, id, err)
		}
		if em.SlippageBps >= 10_000 {
			return fmt.Errorf("%w: exchange market %s: slippage_bps %d", ErrInvalidConfig, id, em.SlippageBps)
		}
		if _, err := parsePrice(em.Price); err != nil {
			return fmt.Errorf("exchange market %s: %w", id, err)
		}
		dexMarkets[id] = em
	}

	seen := make(map[uuid.UUID]bool, len(f.Markets))
	for i, m := range f.Markets {
		id, err := parseID(fmt.Sprintf("markets[%d].id", i), m.ID)
		if err != nil {
			return err
		}
		if seen[id] {
			return fmt.Errorf("%w: market %s listed twice", ErrInvalidConfig, id)
		}
		seen[id] = true
		if _, err := parseID(fmt.Sprintf("markets[%d].owner", i), m.Owner); err != nil {
			return err
		}
		quote, err := parseID(fmt.Sprintf("markets[%d].quote_mint", i), m.QuoteMint)
		if err != nil {
			return err
		}

		mints := make(map[uuid.UUID]bool, len(m.Reserves))
		for j, r := range m.Reserves {
			field := fmt.Sprintf("markets[%d].reserves[%d]", i, j)
			mint, err := parseID(field+".token_mint", r.TokenMint)
			if err != nil {
				return err
			}
			if mints[mint] {
				return fmt.Errorf("%w: %s: token %s already has a reserve", ErrInvalidConfig, field, mint)
			}
			mints[mint] = true

			if err := state.ValidateTokenExponent(r.Exponent); err != nil {
				return fmt.Errorf("%w: %s.exponent: %v", ErrInvalidConfig, field, err)
			}
			cfg := r.reserveConfig()
			if err := state.ValidateReserveConfig(&cfg); err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			if r.Price != "" {
				if _, err := parsePrice(r.Price); err != nil {
					return fmt.Errorf("%s: %w", field, err)
				}
			}
			if r.DexMarket == "" {
				continue
			}
			dexID, err := parseID(field+".dex_market", r.DexMarket)
			if err != nil {
				return err
			}
			em, ok := dexMarkets[dexID]
			if !ok {
				return fmt.Errorf("%w: %s: dex market %s is not defined", ErrInvalidConfig, field, dexID)
			}
			if uuid.MustParse(em.BaseMint) != mint || uuid.MustParse(em.QuoteMint) != quote {
				return fmt.Errorf("%w: %s: dex market %s does not trade %s against %s",
					ErrInvalidConfig, field, dexID, mint, quote)
			}
		}
	}
	return nil
}

// SimMarkets converts the exchange section into simulator markets.
func (f *MarketFile) SimMarkets() ([]exchange.SimMarket, error) {
	out := make([]exchange.SimMarket, 0, len(f.ExchangeMarkets))
	for _, em := range f.ExchangeMarkets {
		d, err := parsePrice(em.Price)
		if err != nil {
			return nil, fmt.Errorf("exchange market %s: %w", em.ID, err)
		}
		price, err := fpmath.FromDecimalValue(d)
		if err != nil {
			return nil, fmt.Errorf("exchange market %s: price: %w", em.ID, err)
		}
		out = append(out, exchange.SimMarket{
			MarketInfo: exchange.MarketInfo{
				ID:          uuid.MustParse(em.ID),
				BaseMint:    uuid.MustParse(em.BaseMint),
				QuoteMint:   uuid.MustParse(em.QuoteMint),
				CoinLotSize: em.CoinLotSize,
			},
			BaseExponent:  em.BaseExponent,
			QuoteExponent: em.QuoteExponent,
			Price:         price,
			SlippageBps:   em.SlippageBps,
			DepthLots:     em.DepthLots,
		})
	}
	return out, nil
}

// BootstrapCommands returns the commands that bring the core up to the file:
// an init_market per market, an init_reserve per reserve and a priced
// refresh_reserve where a price is set. Command ids derive from the
// definition, so re-running the same file is absorbed by idempotency and a
// changed price produces a new refresh. slot supplies each market's clock.
func (f *MarketFile) BootstrapCommands(slot func(market uuid.UUID) uint64) ([]event.Command, error) {
	var cmds []event.Command
	for _, m := range f.Markets {
		id := uuid.MustParse(m.ID)
		head := func(parts ...string) event.Header {
			return event.Header{
				CommandID: bootstrapID(id, parts...),
				Market:    id,
				Signer:    uuid.MustParse(m.Owner),
				Slot:      slot(id),
			}
		}

		cmds = append(cmds, &event.InitMarket{
			Header:        head("init_market"),
			QuoteMint:     uuid.MustParse(m.QuoteMint),
			QuoteCurrency: m.QuoteCurrency,
		})

		for _, r := range m.Reserves {
			mint := uuid.MustParse(r.TokenMint)
			init := &event.InitReserve{
				Header:      head("init_reserve", mint.String()),
				TokenMint:   mint,
				Exponent:    r.Exponent,
				Config:      r.reserveConfig(),
				CoinLotSize: r.CoinLotSize,
			}
			if r.DexMarket != "" {
				init.DexMarket = uuid.MustParse(r.DexMarket)
			}
			cmds = append(cmds, init)

			if r.Price == "" {
				continue
			}
			price, exp, err := priceParts(r.Price)
			if err != nil {
				return nil, fmt.Errorf("market %s reserve %s: %w", id, mint, err)
			}
			cmds = append(cmds, &event.RefreshReserve{
				Header:        head("refresh_reserve", mint.String(), r.Price),
				Reserve:       state.ReserveID(id, mint),
				Price:         price,
				PriceExponent: exp,
			})
		}
	}
	return cmds, nil
}

func (r Reserve) reserveConfig() state.ReserveConfig {
	if r.Config == nil {
		return state.DefaultReserveConfig()
	}
	return *r.Config
}

func bootstrapID(market uuid.UUID, parts ...string) uuid.UUID {
	var b bytes.Buffer
	b.WriteString("bootstrap|")
	b.WriteString(market.String())
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(p)
	}
	return uuid.NewSHA1(state.Namespace, b.Bytes())
}

func parseID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s is the nil uuid", ErrInvalidConfig, field)
	}
	return id, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q: %v", ErrInvalidConfig, s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q must be positive", ErrInvalidConfig, s)
	}
	return d, nil
}

// priceParts splits a decimal price into the mantissa and exponent that
// refresh_reserve carries.
func priceParts(s string) (uint64, int32, error) {
	d, err := parsePrice(s)
	if err != nil {
		return 0, 0, err
	}
	coeff := d.Coefficient()
	exp := d.Exponent()
	for exp < 0 && coeff.BitLen() > 64 {
		// drop precision that cannot be carried
		coeff.Quo(coeff, decimalTen)
		exp++
	}
	if !coeff.IsUint64() || coeff.Sign() == 0 {
		return 0, 0, fmt.Errorf("%w: price %q out of range", ErrInvalidConfig, s)
	}
	return coeff.Uint64(), exp, nil
}
