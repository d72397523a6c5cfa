package anomaly

import (
	"gonum.org/v1/gonum/stat"
)

// scaler standardizes feature vectors to zero mean and unit variance,
// with moments fit on one training batch.
type scaler struct {
	mean [featureCount]float64
	std  [featureCount]float64
}

// fitScaler computes per-column moments over the training matrix.
// Columns with zero spread keep a unit divisor so transform stays defined.
func fitScaler(samples [][]float64) *scaler {
	s := &scaler{}
	column := make([]float64, len(samples))

	for j := 0; j < featureCount; j++ {
		for i, row := range samples {
			column[i] = row[j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || std != std { // zero spread or NaN (single sample)
			std = 1
		}
		s.mean[j] = mean
		s.std[j] = std
	}
	return s
}

// transform standardizes one vector in place and returns it.
func (s *scaler) transform(vec []float64) []float64 {
	for j := 0; j < featureCount; j++ {
		vec[j] = (vec[j] - s.mean[j]) / s.std[j]
	}
	return vec
}
