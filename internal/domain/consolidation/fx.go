package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FxRate is one recorded (day, base, quote) exchange rate. Rates are
// immutable once recorded and no inverse is ever inferred from them.
type FxRate struct {
	shared.BaseEntity
	Day   time.Time
	Base  valueobject.Currency
	Quote valueobject.Currency
	Rate  decimal.Decimal
}

// NewFxRate records a rate for a currency pair on a day.
func NewFxRate(day time.Time, base, quote valueobject.Currency, rate decimal.Decimal) (*FxRate, error) {
	if !base.IsValid() || !quote.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "FX rate currencies must be ISO 4217 codes")
	}
	if base == quote {
		return nil, shared.NewDomainError("INVALID_INPUT", "FX rate base and quote must differ")
	}
	if !rate.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "FX rate must be positive")
	}
	return &FxRate{
		BaseEntity: shared.NewBaseEntity(),
		Day:        day.UTC().Truncate(24 * time.Hour),
		Base:       base,
		Quote:      quote,
		Rate:       rate,
	}, nil
}

// FxRateLookup is the narrow read port the converter uses. FindOnOrBefore
// must return the most recent rate dated on or before the given day, or
// shared.ErrNotFound.
type FxRateLookup interface {
	FindOnOrBefore(ctx context.Context, base, quote valueobject.Currency, day time.Time) (*FxRate, error)
}

// Conversion is the audited result of one currency conversion: the resolved
// rate travels with the converted amount.
type Conversion struct {
	Amount    decimal.Decimal
	Converted decimal.Decimal
	From      valueobject.Currency
	To        valueobject.Currency
	Rate      decimal.Decimal
	RateDay   time.Time
}

// FxConverter converts amounts into a target currency using direct pair
// rates only. Resolved rates are cached for the lifetime of the converter,
// which the runner scopes to a single run.
type FxConverter struct {
	lookup FxRateLookup
	cache  map[string]*FxRate
}

// NewFxConverter creates a converter with an empty per-run rate cache.
func NewFxConverter(lookup FxRateLookup) *FxConverter {
	return &FxConverter{
		lookup: lookup,
		cache:  make(map[string]*FxRate),
	}
}

// Convert converts amount from one currency to another as of a date.
// Identical currencies convert with rate 1. Otherwise the exact-day rate is
// used, falling back to the most recent rate on or before asOf; never a
// future rate, never triangulation through a third currency.
func (c *FxConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to valueobject.Currency, asOf time.Time) (Conversion, error) {
	if from == to {
		return Conversion{
			Amount:    amount,
			Converted: amount,
			From:      from,
			To:        to,
			Rate:      decimal.NewFromInt(1),
			RateDay:   asOf,
		}, nil
	}

	rate, err := c.resolve(ctx, from, to, asOf)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{
		Amount:    amount,
		Converted: amount.Mul(rate.Rate),
		From:      from,
		To:        to,
		Rate:      rate.Rate,
		RateDay:   rate.Day,
	}, nil
}

func (c *FxConverter) resolve(ctx context.Context, from, to valueobject.Currency, asOf time.Time) (*FxRate, error) {
	key := fmt.Sprintf("%s/%s@%s", from, to, asOf.Format("2006-01-02"))
	if r, ok := c.cache[key]; ok {
		return r, nil
	}
	r, err := c.lookup.FindOnOrBefore(ctx, from, to, asOf)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("MISSING_FX_RATE",
				fmt.Sprintf("No FX rate for %s/%s on or before %s", from, to, asOf.Format("2006-01-02")))
		}
		return nil, err
	}
	c.cache[key] = r
	return r, nil
}

// RatesUsed returns the distinct rates resolved so far, for run audit output.
func (c *FxConverter) RatesUsed() []*FxRate {
	seen := make(map[string]bool, len(c.cache))
	out := make([]*FxRate, 0, len(c.cache))
	for _, r := range c.cache {
		k := fmt.Sprintf("%s/%s@%s", r.Base, r.Quote, r.Day.Format("2006-01-02"))
		if !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}
