// Package predictor implements C4, the Predictor Ensemble: three
// submodels combined by a weighted vote over a fixed-arity feature
// vector, per spec.md §4.4.
package predictor

import (
	"math"

	"polybot/internal/domain"
)

// Submodel is the shared shape every ensemble member implements. This is
// a sum-type-by-interface rather than an inheritance hierarchy, per
// spec.md §9's design note: each variant owns its own coefficients and
// has no shared base state.
type Submodel interface {
	Name() string
	// Predict returns prob_up for the given feature vector and mask.
	// Missing entries are already imputed with 0.0 in vec; mask marks
	// which entries were actually observed.
	Predict(vec [domain.FeatureVectorSize]float64, mask [domain.FeatureVectorSize]bool) float64
}

// logistic is the shared sigmoid used by the logistic regression
// submodel and, as a squashing function, by the other two to keep their
// outputs in [0,1] without a hard clamp.
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// RandomForest approximates a binary random-forest vote with a bank of
// shallow, independently-weighted feature "stumps" whose signed votes
// are averaged and squashed. It is the primary nonlinear predictor,
// weight 0.40 by default.
type RandomForest struct {
	// stumpWeights holds one coefficient per feature index; each acts as
	// an independent weak learner's vote direction and strength.
	stumpWeights [domain.FeatureVectorSize]float64
	bias         float64
}

// NewRandomForest builds a RandomForest with a fixed, hand-tuned
// coefficient set favoring momentum and trend-strength features, in
// lieu of a trained model (no training data ships with this service;
// coefficients start centered and are only ever nudged by ensemble
// weight adjustment, never retrained per-submodel).
func NewRandomForest() *RandomForest {
	rf := &RandomForest{}
	rf.stumpWeights[0] = 0.015  // rsi
	rf.stumpWeights[1] = 0.6    // rsi_norm
	rf.stumpWeights[4] = 2.5    // macd_hist
	rf.stumpWeights[5] = 1.8    // macd_slope
	rf.stumpWeights[6] = 0.4    // bb_position
	rf.stumpWeights[9] = 0.01   // adx
	rf.stumpWeights[10] = 0.02  // di_plus
	rf.stumpWeights[11] = -0.02 // di_minus
	rf.stumpWeights[12] = 3.0   // velocity
	rf.stumpWeights[13] = 1.5   // acceleration
	rf.stumpWeights[14] = 0.01  // stoch_rsi
	return rf
}

func (rf *RandomForest) Name() string { return "random_forest" }

func (rf *RandomForest) Predict(vec [domain.FeatureVectorSize]float64, mask [domain.FeatureVectorSize]bool) float64 {
	var sum float64
	for i, w := range rf.stumpWeights {
		if mask[i] {
			sum += w * vec[i]
		}
	}
	return logistic(sum + rf.bias)
}

// GradientBoosting approximates a small boosted ensemble with a
// staged sum of weighted feature contributions, distinct from
// RandomForest's coefficient set so the two submodels genuinely
// disagree on correlated inputs. Weight 0.35 by default, refining the
// random forest's primary signal.
type GradientBoosting struct {
	stageWeights [domain.FeatureVectorSize]float64
	bias         float64
}

func NewGradientBoosting() *GradientBoosting {
	gb := &GradientBoosting{}
	gb.stageWeights[0] = -0.02  // rsi (mean-reversion lean)
	gb.stageWeights[1] = -0.9   // rsi_norm
	gb.stageWeights[2] = 1.2    // macd_line
	gb.stageWeights[4] = 1.6    // macd_hist
	gb.stageWeights[7] = -0.3   // bb_width (penalize wide bands)
	gb.stageWeights[8] = -0.5   // bb_squeeze (pre-breakout, direction-agnostic)
	gb.stageWeights[9] = 0.015  // adx
	gb.stageWeights[12] = 2.2   // velocity
	gb.stageWeights[25] = -4.0  // volatility_atr_pct_5m (penalize chop)
	gb.stageWeights[26] = 0.5   // btc_correlation
	return gb
}

func (gb *GradientBoosting) Name() string { return "gradient_boosting" }

func (gb *GradientBoosting) Predict(vec [domain.FeatureVectorSize]float64, mask [domain.FeatureVectorSize]bool) float64 {
	var sum float64
	for i, w := range gb.stageWeights {
		if mask[i] {
			sum += w * vec[i]
		}
	}
	return logistic(sum + gb.bias)
}

// LogisticRegression is the baseline / calibration anchor: a single
// linear model over the full vector with small, conservative
// coefficients so it stays close to 0.5 absent a strong signal. Weight
// 0.25 by default.
type LogisticRegression struct {
	coef [domain.FeatureVectorSize]float64
	bias float64
}

func NewLogisticRegression() *LogisticRegression {
	lr := &LogisticRegression{}
	lr.coef[1] = 0.5  // rsi_norm
	lr.coef[4] = 0.8  // macd_hist
	lr.coef[6] = 0.3  // bb_position
	lr.coef[12] = 1.0 // velocity
	lr.coef[27] = 0.6 // calibration_win_rate
	return lr
}

func (lr *LogisticRegression) Name() string { return "logistic_regression" }

func (lr *LogisticRegression) Predict(vec [domain.FeatureVectorSize]float64, mask [domain.FeatureVectorSize]bool) float64 {
	var sum float64
	for i, w := range lr.coef {
		if mask[i] {
			sum += w * vec[i]
		}
	}
	return logistic(sum + lr.bias)
}
