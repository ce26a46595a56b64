package trade

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	kindSingle = "single"
	kindTwap   = "twap"
)

var (
	meter = otel.Meter("github.com/Cogwheel-Validator/spectra-trade/trader/trade")

	quoteCounter, _ = meter.Int64Counter(
		"trade.quotes",
		metric.WithDescription("Router quotes requested by the trade engine"),
		metric.WithUnit("{quote}"),
	)
	verdictCounter, _ = meter.Int64Counter(
		"trade.twap.verdicts",
		metric.WithDescription("TWAP plans by verdict"),
		metric.WithUnit("{plan}"),
	)
)

func observeQuote(direction Direction, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	quoteCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("direction", string(direction)),
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func observeVerdict(direction Direction, verdict TwapError) {
	name := string(verdict)
	if verdict == TwapOK {
		name = "ok"
	}
	verdictCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("direction", string(direction)),
		attribute.String("verdict", name),
	))
}
