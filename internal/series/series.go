// Package series implements the candle series type: a typed OHLCV sequence
// that is scanned once to self-describe its own data quality via a set of
// capability flags, then validated against a requirement level.
package series

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Series is a Candle Series v1.
type Series struct {
	Timeframe    string
	Candles      []types.Candle
	Capabilities types.Capabilities
	Provenance   types.Provenance
}

// New constructs a v1 series with the initial capability assumptions: ordered
// is assumed true until scanned otherwise; everything else starts
// false/Unknown. Candles are not copied; ownership transfers to the Series.
func New(timeframe string, candles []types.Candle, provenance types.Provenance) *Series {
	return &Series{
		Timeframe: timeframe,
		Candles:   candles,
		Capabilities: types.Capabilities{
			Ordered:        true,
			GapInformation: types.GapUnknown,
		},
		Provenance: provenance,
	}
}

// ScanAll runs every scanner and logs the resulting capability set. Callers
// that only need a subset of scans may call the individual Scan* methods
// directly.
func (s *Series) ScanAll(logger *zap.Logger) {
	s.ScanOrdering()
	s.ScanCadence()
	s.ScanOhlcSanity()
	s.ScanTimeframeAlignment()
	if logger != nil {
		logger.Debug("candle series scanned",
			zap.Bool("ordered", s.Capabilities.Ordered),
			zap.Bool("cadence_known", s.Capabilities.CadenceKnown),
			zap.String("gap_information", s.Capabilities.GapInformation.String()),
			zap.Bool("ohlc_sanity_known", s.Capabilities.OhlcSanityKnown),
			zap.Bool("timeframe_alignment_known", s.Capabilities.TimeframeAlignmentKnown),
			zap.Bool("timeframe_aligned", s.Capabilities.TimeframeAligned),
		)
	}
}

// ScanOrdering sets Ordered=false on the first non-increasing consecutive pair.
func (s *Series) ScanOrdering() {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Time.After(s.Candles[i-1].Time) {
			s.Capabilities.Ordered = false
			return
		}
	}
}

// ScanCadence computes the sorted positive deltas between consecutive
// candles and derives cadence_known / gap_information from their median.
// Fewer than 2 candles, or no positive delta, leaves cadence unknown.
func (s *Series) ScanCadence() {
	if len(s.Candles) < 2 {
		return
	}

	deltas := make([]int64, 0, len(s.Candles)-1)
	for i := 1; i < len(s.Candles); i++ {
		d := s.Candles[i].Time.Unix() - s.Candles[i-1].Time.Unix()
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	median := deltas[len(deltas)/2]
	if median <= 0 {
		return
	}

	conforms := true
	gaps := false
	exactMatches := 0
	for _, d := range deltas {
		if d%median != 0 {
			conforms = false
			break
		}
		if d == median {
			exactMatches++
		}
		if d > median {
			gaps = true
		}
	}

	if conforms && exactMatches*2 >= len(deltas) {
		s.Capabilities.CadenceKnown = true
		if gaps {
			s.Capabilities.GapInformation = types.GapKnownWithGaps
		} else {
			s.Capabilities.GapInformation = types.GapKnownComplete
		}
	}
}

// ScanOhlcSanity sets OhlcSanityKnown=true iff every candle satisfies the
// OHLC invariants.
func (s *Series) ScanOhlcSanity() {
	sane := true
	for _, c := range s.Candles {
		if !c.Sane() {
			sane = false
			break
		}
	}
	s.Capabilities.OhlcSanityKnown = sane
}

// ScanTimeframeAlignment parses the timeframe token to a step in seconds and
// checks every candle's unix time is an exact multiple of it. An unparsable timeframe
// leaves alignment unknown, not false.
func (s *Series) ScanTimeframeAlignment() {
	step, ok := parseTimeframeSeconds(s.Timeframe)
	if !ok || step <= 0 {
		s.Capabilities.TimeframeAlignmentKnown = false
		s.Capabilities.TimeframeAligned = false
		return
	}

	s.Capabilities.TimeframeAlignmentKnown = true
	for _, c := range s.Candles {
		if c.Time.Unix()%step != 0 {
			s.Capabilities.TimeframeAligned = false
			return
		}
	}
	s.Capabilities.TimeframeAligned = true
}

func parseTimeframeSeconds(tf string) (int64, bool) {
	if len(tf) < 2 {
		return 0, false
	}
	value, unit := tf[:len(tf)-1], tf[len(tf)-1:]
	amount, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "m":
		return amount * 60, true
	case "h":
		return amount * 60 * 60, true
	case "d":
		return amount * 60 * 60 * 24, true
	default:
		return 0, false
	}
}

// ValidateAgainst checks the series' capabilities against a requirement and
// reports satisfied + the specific violations. Pure, no I/O.
func (s *Series) ValidateAgainst(req types.Requirement) (bool, []types.Violation) {
	var violations []types.Violation

	if req.RequireOrdered && !s.Capabilities.Ordered {
		violations = append(violations, types.ViolationNotOrdered)
	}
	if req.RequireCadenceKnown && !s.Capabilities.CadenceKnown {
		violations = append(violations, types.ViolationCadenceUnknown)
	}
	if req.RequireGapInformationKnown && s.Capabilities.GapInformation == types.GapUnknown {
		violations = append(violations, types.ViolationGapInformationUnknown)
	}
	if req.RequireOhlcSanityKnown && !s.Capabilities.OhlcSanityKnown {
		violations = append(violations, types.ViolationOhlcSanityUnknown)
	}
	if req.RequireTimeframeAlignmentKnown && !s.Capabilities.TimeframeAlignmentKnown {
		violations = append(violations, types.ViolationTimeframeAlignmentUnknown)
	} else if req.RequireTimeframeAligned && s.Capabilities.TimeframeAlignmentKnown && !s.Capabilities.TimeframeAligned {
		violations = append(violations, types.ViolationTimeframeMisaligned)
	}

	return len(violations) == 0, violations
}
