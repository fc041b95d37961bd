package app

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/config"
	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/portfolio"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

// dec converts a configured float to a decimal through its shortest text
// form, so 0.1 stays 0.1 rather than its binary expansion.
func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// riskConfig maps the risk and exit sections onto the ledger settings.
func riskConfig(cfg *config.Config) portfolio.Config {
	return portfolio.Config{
		StartingBalance:    dec(cfg.Risk.StartingBalance),
		MaxPositions:       cfg.Risk.MaxPositions,
		MaxExposure:        dec(cfg.Risk.MaxExposure),
		MaxPerTrade:        dec(cfg.Risk.MaxPerTrade),
		MinTradeUSD:        dec(cfg.Risk.MinTradeUSD),
		RiskPerTrade:       dec(cfg.Risk.RiskPerTrade),
		ATRStopMultiplier:  dec(cfg.Exits.ATRStopMultiplier),
		TrailingActivation: dec(cfg.Exits.TrailingActivation),
		TrailingDistance:   dec(cfg.Exits.TrailingDistance),
		Strict:             cfg.Risk.StrictInvariants,
	}
}

// strategyParams maps the indicator, exit and trading sections onto the
// policy thresholds.
func strategyParams(cfg *config.Config) strategy.Params {
	p := strategy.DefaultParams()

	ind := cfg.Indicators
	p.Indicators.RSIPeriod = ind.RSIPeriod
	p.Indicators.EMAPeriod = ind.EMAPeriod
	p.Indicators.MACDFast = ind.MACDFast
	p.Indicators.MACDSlow = ind.MACDSlow
	p.Indicators.MACDSignal = ind.MACDSignal
	p.Indicators.ATRPeriod = ind.ATRPeriod
	p.RSIOversold = ind.RSIOversold
	p.RSISuperOversold = ind.RSISuperOversold
	p.MaxVolatility = ind.MaxVolatility

	p.MinBuyCandles = cfg.Trading.MinBuyCandles
	p.MinSellCandles = cfg.Trading.MinSellCandles

	ex := cfg.Exits
	p.RSIOverbought = ex.RSIOverbought
	p.ATRStopMultiplier = dec(ex.ATRStopMultiplier)
	p.ATRTP1Multiplier = dec(ex.ATRTP1Multiplier)
	p.ATRTP2Multiplier = dec(ex.ATRTP2Multiplier)
	p.Tier1Fraction = dec(ex.Tier1Fraction)
	p.Tier2Fraction = dec(ex.Tier2Fraction)
	p.StaticTP1 = dec(ex.StaticTP1)
	p.StaticTP2 = dec(ex.StaticTP2)

	p.PairTargets = make(map[string]strategy.Targets, len(ex.PairTargets))
	for inst, t := range ex.PairTargets {
		p.PairTargets[strings.ToUpper(inst)] = strategy.Targets{TP1: dec(t.TP1), TP2: dec(t.TP2)}
	}
	return p
}

// engineConfig maps the trading section onto the engine settings.
func engineConfig(cfg *config.Config) strategy.EngineConfig {
	return strategy.EngineConfig{
		Pairs:            cfg.Trading.Pairs,
		Granularity:      domain.Granularity(cfg.Trading.Granularity),
		Lookback:         cfg.Trading.CandleLookback.Duration,
		UseLivePrice:     cfg.Trading.UseLivePrice,
		FetchConcurrency: cfg.Trading.FetchConcurrency,
	}
}
