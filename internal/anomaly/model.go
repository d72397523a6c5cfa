package anomaly

import (
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/wekeza/riskengine/internal/domain"
)

// MinTrainingSamples is the minimum history size required to fit the model.
const MinTrainingSamples = 10

// MaxContribution bounds the anomaly contribution to the composite score.
const MaxContribution = 0.3

// ReasonUntrained is returned while the model has no fitted state.
const ReasonUntrained = "Model not trained"

// snapshot is one immutable fitted state: scaler moments plus the forest.
// Retraining builds a complete snapshot and publishes it with an atomic
// swap, so in-flight scoring always sees one consistent version.
type snapshot struct {
	scaler    *scaler
	forest    *forest
	samples   int
	trainedAt time.Time
}

// Model is the anomaly detector with an explicit train/score lifecycle.
// It starts UNTRAINED and degrades gracefully to a zero contribution.
type Model struct {
	seed uint64
	snap atomic.Pointer[snapshot]
}

// New returns an untrained model. The seed fixes the forest's random
// splits so identical training batches produce identical detectors.
func New(seed int64) *Model {
	return &Model{seed: uint64(seed)}
}

// Trained reports whether a fitted snapshot is published.
func (m *Model) Trained() bool {
	return m.snap.Load() != nil
}

// TrainedAt returns the fit time of the current snapshot, zero if untrained.
func (m *Model) TrainedAt() time.Time {
	if s := m.snap.Load(); s != nil {
		return s.trainedAt
	}
	return time.Time{}
}

// Train fits scaler and forest on the historical batch. It returns false
// and leaves the current lifecycle state untouched when fewer than
// MinTrainingSamples transactions yield usable feature vectors.
func (m *Model) Train(history []*domain.Transaction) bool {
	matrix := make([][]float64, 0, len(history))
	for _, tx := range history {
		vec, err := features(tx)
		if err != nil {
			slog.Debug("skipping unfeaturizable transaction in training batch",
				"tx_id", tx.ID,
				"error", err,
			)
			continue
		}
		matrix = append(matrix, vec)
	}

	if len(matrix) < MinTrainingSamples {
		slog.Warn("insufficient data for anomaly detection training",
			"usable_samples", len(matrix),
			"required", MinTrainingSamples,
		)
		return false
	}

	sc := fitScaler(matrix)
	for _, row := range matrix {
		sc.transform(row)
	}

	rng := rand.New(rand.NewPCG(m.seed, m.seed))
	next := &snapshot{
		scaler:    sc,
		forest:    growForest(matrix, rng),
		samples:   len(matrix),
		trainedAt: time.Now().UTC(),
	}
	m.snap.Store(next)

	slog.Info("trained anomaly detector", "samples", len(matrix))
	return true
}

// Score returns the anomaly contribution in [0, MaxContribution] and a
// human-readable reason. An untrained model contributes zero without
// error; a feature-preparation failure fails this call only and the
// caller treats the contribution as zero.
func (m *Model) Score(tx *domain.Transaction) (float64, string, error) {
	snap := m.snap.Load()
	if snap == nil {
		return 0, ReasonUntrained, nil
	}

	vec, err := features(tx)
	if err != nil {
		return 0, "Anomaly detection failed", err
	}
	snap.scaler.transform(vec)

	decision := snap.forest.decision(vec)

	contribution := -decision * MaxContribution
	if contribution < 0 {
		contribution = 0
	}
	if contribution > MaxContribution {
		contribution = MaxContribution
	}

	reason := "Normal pattern"
	if decision < 0 {
		reason = "Anomalous pattern detected"
	}
	return contribution, reason, nil
}
