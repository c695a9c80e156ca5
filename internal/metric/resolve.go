package metric

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

// Neutral is the "no signal" value assigned to a record with no usable field.
const Neutral = 0.5

// DefaultJitter is the documented aggregate jitter amplitude.
const DefaultJitter = 0.02

// Rule identifies which step of the fallback chain produced a value.
type Rule int

const (
	RuleNone Rule = iota
	RuleDirectShare
	RuleFavorOppose
	RuleDemographic
	RuleNeutral
	RuleCountyMean
)

func (r Rule) String() string {
	switch r {
	case RuleDirectShare:
		return "direct_share"
	case RuleFavorOppose:
		return "favor_oppose"
	case RuleDemographic:
		return "demographic"
	case RuleNeutral:
		return "neutral"
	case RuleCountyMean:
		return "county_mean"
	default:
		return "none"
	}
}

// Fields for rule 1, in order. Values must already be fractions in [0,1].
var directShareFields = []string{
	"political_party.share.democratic",
	"political_party.share.dem",
	"political_party.democratic_share",
	"political_party.dem_share",
	"party_share",
}

// Field pairs for rule 2, looked up under each of favorOpposeScopes.
var favorOpposePairs = [][2]string{
	{"democrat", "republican"},
	{"democratic", "republican"},
	{"dem", "rep"},
	{"dem_votes", "rep_votes"},
	{"favor", "oppose"},
	{"yes", "no"},
}

var favorOpposeScopes = []string{"political_party.", ""}

// DemographicFields is the rule 3 scan order. The order is a provisional display
// policy and may change; it does not rank the fields by importance.
var DemographicFields = []string{
	"hispanic_pct",
	"minority_pct",
	"black_pct",
	"poverty_rate",
	"bachelors_pct",
	"college_pct",
	"age_65_plus_pct",
	"under_18_pct",
}

// Value is a NormalizedMetric: V is meaningful only when Known.
type Value struct {
	V     float64 `json:"value"`
	Known bool    `json:"known"`
}

func Unknown() Value           { return Value{} }
func Known(v float64) Value    { return Value{V: v, Known: true} }
func (v Value) String() string { return formatValue(v) }

// Options controls aggregate post-processing. The zero value is deterministic.
type Options struct {
	// Jitter is the half-width of a symmetric perturbation added to county-mean
	// state aggregates. Zero disables it.
	Jitter float64
	// Rand is the jitter source; a time-seeded source is used when nil.
	Rand *rand.Rand
}

// Snapshot is an immutable resolution result.
type Snapshot struct {
	States   map[region.Code]float64
	Counties map[region.Code]float64
	rules    map[region.Code]Rule
}

func (s *Snapshot) Value(code region.Code) Value {
	if s == nil {
		return Unknown()
	}
	switch code.Kind() {
	case region.KindState:
		if v, ok := s.States[code]; ok {
			return Known(v)
		}
	case region.KindStateHeader:
		if v, ok := s.States[code.StateOf()]; ok {
			return Known(v)
		}
	case region.KindCounty:
		if v, ok := s.Counties[code]; ok {
			return Known(v)
		}
	}
	return Unknown()
}

// Rule reports which fallback step produced the value for code.
func (s *Snapshot) Rule(code region.Code) Rule {
	if s == nil {
		return RuleNone
	}
	if code.IsStateHeader() {
		code = code.StateOf()
	}
	return s.rules[code]
}

// RuleCounts tallies how many regions each rule resolved.
func (s *Snapshot) RuleCounts() map[Rule]int {
	out := map[Rule]int{}
	if s == nil {
		return out
	}
	for _, r := range s.rules {
		out[r]++
	}
	return out
}

// Resolve reconciles record keys against region codes, derives one value per
// record, and fills missing catalog states with the mean of their counties.
// It never fails on individual records.
func Resolve(catalog *region.Catalog, records Records, opts Options) *Snapshot {
	snap := &Snapshot{
		States:   map[region.Code]float64{},
		Counties: map[region.Code]float64{},
		rules:    map[region.Code]Rule{},
	}

	// sorted so that a 2-digit key deterministically wins over its "SS000" header
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		code, ok := region.Normalize(k)
		if !ok {
			continue
		}
		v, rule := Derive(records[k])
		if code.IsState() {
			if _, dup := snap.States[code]; dup {
				continue
			}
			snap.States[code] = v
		} else {
			if _, dup := snap.Counties[code]; dup {
				continue
			}
			snap.Counties[code] = v
		}
		snap.rules[code] = rule
	}

	aggregateStates(snap, catalog, opts)
	return snap
}

func aggregateStates(snap *Snapshot, catalog *region.Catalog, opts Options) {
	states := catalog.States()
	if len(states) == 0 {
		return
	}
	sums := map[region.Code]float64{}
	counts := map[region.Code]int{}
	for code, v := range snap.Counties {
		st := code.StateOf()
		sums[st] += v
		counts[st]++
	}

	var rng *rand.Rand
	for _, st := range states {
		if _, ok := snap.States[st]; ok {
			continue
		}
		n := counts[st]
		if n == 0 {
			continue
		}
		mean := sums[st] / float64(n)
		if opts.Jitter > 0 {
			if rng == nil {
				rng = opts.Rand
				if rng == nil {
					rng = rand.New(rand.NewSource(rand.Int63()))
				}
			}
			mean = clamp01(mean + (rng.Float64()*2-1)*opts.Jitter)
		}
		snap.States[st] = mean
		snap.rules[st] = RuleCountyMean
	}
}

// Derive applies the fallback chain to a single record. A nil or empty record
// resolves to Neutral.
func Derive(rec Record) (float64, Rule) {
	if v, ok := directShare(rec); ok {
		return v, RuleDirectShare
	}
	if v, ok := favorOppose(rec); ok {
		return v, RuleFavorOppose
	}
	if v, ok := demographic(rec); ok {
		return v, RuleDemographic
	}
	return Neutral, RuleNeutral
}

func directShare(rec Record) (float64, bool) {
	for _, f := range directShareFields {
		if v, ok := rec.number(f); ok && inUnit(v) {
			return v, true
		}
	}
	return 0, false
}

func favorOppose(rec Record) (float64, bool) {
	for _, scope := range favorOpposeScopes {
		for _, pair := range favorOpposePairs {
			favor, ok1 := rec.number(scope + pair[0])
			oppose, ok2 := rec.number(scope + pair[1])
			if !ok1 || !ok2 {
				continue
			}
			sum := favor + oppose
			if sum <= 0 {
				continue
			}
			return clamp01(favor / sum), true
		}
	}
	return 0, false
}

func demographic(rec Record) (float64, bool) {
	for _, f := range DemographicFields {
		v, ok := rec.number("demographics." + f)
		if !ok {
			continue
		}
		if inUnit(v) {
			return v, true
		}
	}
	return 0, false
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return Neutral
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func formatValue(v Value) string {
	if !v.Known {
		return "unknown"
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

func isBad(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
