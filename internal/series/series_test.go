package series_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sf19-97/spbacktest/internal/series"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func candle(t time.Time, o, h, l, c float64) types.Candle {
	return types.Candle{
		Time:  t,
		Open:  decimal.NewFromFloat(o),
		High:  decimal.NewFromFloat(h),
		Low:   decimal.NewFromFloat(l),
		Close: decimal.NewFromFloat(c),
	}
}

func TestScanOrderingDetectsNonIncreasing(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []types.Candle{
		candle(base, 100, 101, 99, 100),
		candle(base.Add(time.Hour), 100, 101, 99, 100),
		candle(base.Add(time.Hour), 100, 101, 99, 100), // repeated timestamp
	}
	s := series.New("1h", candles, types.Provenance{})
	s.ScanOrdering()
	if s.Capabilities.Ordered {
		t.Fatal("expected Ordered=false for a repeated timestamp")
	}
}

func TestScanCadenceKnownComplete(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []types.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, candle(base.Add(time.Duration(i)*time.Hour), 100, 101, 99, 100))
	}
	s := series.New("1h", candles, types.Provenance{})
	s.ScanCadence()
	if !s.Capabilities.CadenceKnown {
		t.Fatal("expected cadence_known=true for a perfectly regular series")
	}
	if s.Capabilities.GapInformation != types.GapKnownComplete {
		t.Errorf("expected KnownComplete, got %s", s.Capabilities.GapInformation)
	}
}

func TestScanCadenceWithGaps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []types.Candle{
		candle(base, 100, 101, 99, 100),
		candle(base.Add(time.Hour), 100, 101, 99, 100),
		candle(base.Add(3*time.Hour), 100, 101, 99, 100), // gap: 2h delta, multiple of 1h median
		candle(base.Add(4*time.Hour), 100, 101, 99, 100),
	}
	s := series.New("1h", candles, types.Provenance{})
	s.ScanCadence()
	if !s.Capabilities.CadenceKnown {
		t.Fatal("expected cadence_known=true")
	}
	if s.Capabilities.GapInformation != types.GapKnownWithGaps {
		t.Errorf("expected KnownWithGaps, got %s", s.Capabilities.GapInformation)
	}
}

func TestScanCadenceUnknownForTooFewCandles(t *testing.T) {
	s := series.New("1h", []types.Candle{candle(time.Now(), 100, 101, 99, 100)}, types.Provenance{})
	s.ScanCadence()
	if s.Capabilities.CadenceKnown {
		t.Fatal("expected cadence to remain unknown with fewer than 2 candles")
	}
}

func TestScanOhlcSanity(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := candle(base, 100, 99, 101, 100) // high < low: insane
	s := series.New("1h", []types.Candle{bad}, types.Provenance{})
	s.ScanOhlcSanity()
	if s.Capabilities.OhlcSanityKnown {
		t.Fatal("expected ohlc_sanity_known=false for an insane candle")
	}
}

func TestScanTimeframeAlignment(t *testing.T) {
	// Unix epoch 0 is aligned to every step.
	base := time.Unix(0, 0).UTC()
	aligned := []types.Candle{candle(base, 100, 101, 99, 100), candle(base.Add(time.Hour), 100, 101, 99, 100)}
	s := series.New("1h", aligned, types.Provenance{})
	s.ScanTimeframeAlignment()
	if !s.Capabilities.TimeframeAlignmentKnown || !s.Capabilities.TimeframeAligned {
		t.Fatalf("expected alignment known+true, got known=%v aligned=%v",
			s.Capabilities.TimeframeAlignmentKnown, s.Capabilities.TimeframeAligned)
	}

	misaligned := []types.Candle{candle(base.Add(17*time.Minute), 100, 101, 99, 100)}
	s2 := series.New("1h", misaligned, types.Provenance{})
	s2.ScanTimeframeAlignment()
	if !s2.Capabilities.TimeframeAlignmentKnown || s2.Capabilities.TimeframeAligned {
		t.Fatal("expected alignment known but false for a 17-minute offset on a 1h timeframe")
	}

	s3 := series.New("bogus", aligned, types.Provenance{})
	s3.ScanTimeframeAlignment()
	if s3.Capabilities.TimeframeAlignmentKnown {
		t.Fatal("expected alignment unknown (not false) for an unparsable timeframe")
	}
}

func TestValidateAgainstV1Trusted(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	var candles []types.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, candle(base.Add(time.Duration(i)*time.Hour), 100, 101, 99, 100))
	}
	s := series.New("1h", candles, types.Provenance{TrustTier: types.TrustVerified})
	s.ScanAll(nil)

	satisfied, violations := s.ValidateAgainst(types.V1Trusted)
	if !satisfied {
		t.Fatalf("expected a clean synthetic series to satisfy V1Trusted, violations=%v", violations)
	}

	s.Capabilities.Ordered = false
	satisfied, violations = s.ValidateAgainst(types.V1Trusted)
	if satisfied || len(violations) != 1 || violations[0] != types.ViolationNotOrdered {
		t.Fatalf("expected exactly NotOrdered, got satisfied=%v violations=%v", satisfied, violations)
	}
}
