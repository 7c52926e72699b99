package calibration

import (
	"polybot/internal/logging"
)

// DefaultHysteresis is the largest regression in validation accuracy,
// relative to training-split accuracy, that a retrained submodel's
// parameters may show and still be accepted, per spec.md §8 scenario 6.
const DefaultHysteresis = 0.02

// Outcome is one closed trade's per-submodel directional call alongside
// the market's actual settlement, the unit the walk-forward split
// trains and validates against.
type Outcome struct {
	SubmodelProbs map[string]float64
	SettledUp     bool
}

// RetrainDecision records one submodel's walk-forward evaluation.
type RetrainDecision struct {
	SubmodelName       string
	TrainAccuracy      float64
	ValidationAccuracy float64
	Accepted           bool
}

// Trainer implements the retraining half of C7: every
// retrain_interval_trades closed trades, it walk-forward-splits the
// trailing training_window of outcomes 80/20 and only accepts a
// submodel's new parameters if validation accuracy does not regress
// more than the hysteresis margin relative to its own training-split
// accuracy.
type Trainer struct {
	trainingWindow int
	hysteresis     float64
	log            *logging.Logger
}

// NewTrainer constructs a Trainer. trainingWindow caps how many trailing
// outcomes are considered; hysteresis is the maximum tolerated
// validation-accuracy regression before rejecting a candidate.
func NewTrainer(trainingWindow int, hysteresis float64) *Trainer {
	if trainingWindow <= 0 {
		trainingWindow = DefaultTrainingWindow
	}
	if hysteresis <= 0 {
		hysteresis = DefaultHysteresis
	}
	return &Trainer{trainingWindow: trainingWindow, hysteresis: hysteresis, log: logging.WithComponent("calibration")}
}

// Retrain evaluates every named submodel against an 80/20 walk-forward
// split of history (oldest first), accepting a submodel's candidate
// parameters only when validation accuracy holds within hysteresis of
// its own training-split accuracy, per spec.md §8 scenario 6.
func (t *Trainer) Retrain(history []Outcome, submodelNames []string) []RetrainDecision {
	if len(history) > t.trainingWindow {
		history = history[len(history)-t.trainingWindow:]
	}
	splitIdx := int(float64(len(history)) * 0.8)
	train := history[:splitIdx]
	validation := history[splitIdx:]

	decisions := make([]RetrainDecision, 0, len(submodelNames))
	for _, name := range submodelNames {
		trainAcc := accuracy(train, name)
		valAcc := accuracy(validation, name)
		accepted := valAcc >= trainAcc-t.hysteresis

		decisions = append(decisions, RetrainDecision{
			SubmodelName:       name,
			TrainAccuracy:      trainAcc,
			ValidationAccuracy: valAcc,
			Accepted:           accepted,
		})

		t.log.Info("retrain evaluated",
			"submodel", name, "train_accuracy", trainAcc,
			"validation_accuracy", valAcc, "accepted", accepted)
	}
	return decisions
}

func accuracy(outcomes []Outcome, submodelName string) float64 {
	var correct, total int
	for _, o := range outcomes {
		p, ok := o.SubmodelProbs[submodelName]
		if !ok {
			continue
		}
		total++
		calledUp := p >= 0.5
		if calledUp == o.SettledUp {
			correct++
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(correct) / float64(total)
}
