package predictor

import (
	"math"
	"sync"

	"polybot/internal/domain"
	"polybot/internal/logging"
)

// Default gate and tuning constants, per spec.md §4.4.
const (
	DefaultMinConfidence    = 0.55
	DefaultMinReadyFeatures = 8
	DefaultZScoreThreshold  = 1.5
	WeightAdjustBatch       = 10
	AccuracyWindow          = 100
	WeightMin               = 0.10
	WeightMax               = 0.60
)

type member struct {
	model  Submodel
	weight float64
}

// runningStat accumulates an online mean/variance (Welford's algorithm)
// per feature index, used to standardize values for features_triggered
// detection. The ensemble is the only owner of this state.
type runningStat struct {
	n    int64
	mean float64
	m2   float64
}

func (s *runningStat) update(x float64) {
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
}

func (s *runningStat) stddev() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}

// outcomeRecord pairs each submodel's prob_up at prediction time with
// the trade's eventual realized direction, for rolling accuracy.
type outcomeRecord struct {
	probs   map[string]float64
	wasUp   bool
}

// Ensemble implements C4: a weighted vote across three submodels, a
// confidence/min-ready-features gate, and z-score-based
// features_triggered detection. All mutable state (weights, running
// feature statistics, outcome history) is owned exclusively here.
type Ensemble struct {
	mu sync.Mutex

	members []member

	minConfidence    float64
	minReadyFeatures int
	zThreshold       float64

	stats [domain.FeatureVectorSize]runningStat

	history            []outcomeRecord
	tradesSinceAdjust  int

	log *logging.Logger
}

// NewEnsemble builds the default three-submodel ensemble with spec.md's
// default weights (0.40/0.35/0.25) and gate thresholds.
func NewEnsemble() *Ensemble {
	return &Ensemble{
		members: []member{
			{model: NewRandomForest(), weight: 0.40},
			{model: NewGradientBoosting(), weight: 0.35},
			{model: NewLogisticRegression(), weight: 0.25},
		},
		minConfidence:    DefaultMinConfidence,
		minReadyFeatures: DefaultMinReadyFeatures,
		zThreshold:       DefaultZScoreThreshold,
		log:              logging.WithComponent("predictor"),
	}
}

// Weights returns the current per-submodel weight by name, for tests and
// diagnostics.
func (e *Ensemble) Weights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.members))
	for _, m := range e.members {
		out[m.model.Name()] = m.weight
	}
	return out
}

// Predict runs every submodel over f's feature vector and combines them
// by weighted vote, per spec.md §4.4. Returns domain.ErrNoPrediction
// when the confidence or min-ready-features gate fails. The returned
// map of per-submodel probs should be threaded through to ApplyOutcome
// once the resulting trade (if any) settles, so weight adjustment can
// score each submodel against the real outcome.
func (e *Ensemble) Predict(f domain.Features) (domain.Prediction, map[string]float64, error) {
	vec, mask := f.Vector()
	ready := f.ReadyCount()

	e.mu.Lock()
	probs := make(map[string]float64, len(e.members))
	var ensembleProb float64
	for _, m := range e.members {
		p := m.model.Predict(vec, mask)
		probs[m.model.Name()] = p
		ensembleProb += m.weight * p
	}
	for i := range vec {
		if mask[i] {
			e.stats[i].update(vec[i])
		}
	}
	stats := e.stats
	e.mu.Unlock()

	confidence := domain.ComputeConfidence(ensembleProb)
	if confidence < e.minConfidence || ready < e.minReadyFeatures {
		return domain.Prediction{}, nil, domain.ErrNoPrediction
	}

	direction := domain.Down
	if ensembleProb >= 0.5 {
		direction = domain.Up
	}

	triggered := make([]string, 0, 4)
	for i, name := range domain.FeatureNames {
		if !mask[i] {
			continue
		}
		sd := stats[i].stddev()
		if sd == 0 {
			continue
		}
		z := (vec[i] - stats[i].mean) / sd
		if direction == domain.Up && z >= e.zThreshold {
			triggered = append(triggered, name)
		} else if direction == domain.Down && z <= -e.zThreshold {
			triggered = append(triggered, name)
		}
	}

	pred := domain.Prediction{
		Asset:             f.Asset,
		Timeframe:         f.Timeframe,
		Direction:         direction,
		ProbUp:            ensembleProb,
		Confidence:        confidence,
		ModelName:         "ensemble_v1",
		FeaturesTriggered: triggered,
		Ts:                f.ComputedTs,
	}

	return pred, probs, nil
}

// ApplyOutcome is called by main.go's orchestrator once a trade actually
// closes, with the per-submodel probs recorded at prediction time and the
// direction the market actually settled in. It feeds the rolling
// accuracy window used by adjustWeightsLocked, and recomputes weights every
// WeightAdjustBatch closed trades.
func (e *Ensemble) ApplyOutcome(probs map[string]float64, settledUp bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, outcomeRecord{probs: probs, wasUp: settledUp})
	if len(e.history) > AccuracyWindow {
		e.history = e.history[len(e.history)-AccuracyWindow:]
	}
	e.tradesSinceAdjust++
	if e.tradesSinceAdjust >= WeightAdjustBatch {
		e.tradesSinceAdjust = 0
		e.adjustWeightsLocked()
	}
}

// adjustWeightsLocked recomputes per-submodel rolling accuracy over the
// last AccuracyWindow outcomes and resets wᵢ ∝ max(accᵢ−0.5, 0.01),
// clamped to [WeightMin, WeightMax] and renormalized to sum to 1, per
// spec.md §4.4. Callers hold e.mu.
func (e *Ensemble) adjustWeightsLocked() {
	if len(e.history) == 0 {
		return
	}
	raw := make(map[string]float64, len(e.members))
	for _, m := range e.members {
		name := m.model.Name()
		var correct, total int
		for _, rec := range e.history {
			p, ok := rec.probs[name]
			if !ok {
				continue
			}
			total++
			calledUp := p >= 0.5
			if calledUp == rec.wasUp {
				correct++
			}
		}
		acc := 0.5
		if total > 0 {
			acc = float64(correct) / float64(total)
		}
		v := acc - 0.5
		if v < 0.01 {
			v = 0.01
		}
		raw[name] = v
	}

	var sum float64
	for _, v := range raw {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range e.members {
		name := e.members[i].model.Name()
		w := raw[name] / sum
		if w < WeightMin {
			w = WeightMin
		}
		if w > WeightMax {
			w = WeightMax
		}
		e.members[i].weight = w
	}

	var newSum float64
	for _, m := range e.members {
		newSum += m.weight
	}
	for i := range e.members {
		e.members[i].weight /= newSum
	}

	e.log.Info("ensemble weights adjusted",
		"random_forest", e.members[0].weight,
		"gradient_boosting", e.members[1].weight,
		"logistic_regression", e.members[2].weight)
}
