// Package anomaly provides the unsupervised outlier model used for the
// anomaly contribution of the composite risk score.
package anomaly

import (
	"fmt"
	"math"

	"github.com/wekeza/riskengine/internal/domain"
)

// featureCount is the dimensionality of the model's feature space.
const featureCount = 5

// Fixed feature encodings. Unknown values encode to 0.
var (
	typeCodes = map[domain.TransactionType]float64{
		domain.TypeTransfer:   1,
		domain.TypePayment:    2,
		domain.TypeWithdrawal: 3,
		domain.TypeDeposit:    4,
	}
	channelCodes = map[domain.Channel]float64{
		domain.ChannelMobile: 1,
		domain.ChannelOnline: 2,
		domain.ChannelATM:    3,
		domain.ChannelBranch: 4,
	}
)

// features derives the numeric feature vector for one transaction:
// log(amount+1), hour of day, day of week (Monday=0), type code, channel
// code. A transaction without a usable amount cannot be featurized.
func features(tx *domain.Transaction) ([]float64, error) {
	amount := tx.AmountFloat()
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("transaction %s: missing or invalid amount", tx.ID)
	}

	hour := 12.0
	dayOfWeek := 1.0
	if !tx.Timestamp.IsZero() {
		hour = float64(tx.Timestamp.Hour())
		dayOfWeek = float64((int(tx.Timestamp.Weekday()) + 6) % 7)
	}

	return []float64{
		math.Log1p(amount),
		hour,
		dayOfWeek,
		typeCodes[tx.Type],
		channelCodes[tx.Channel],
	}, nil
}
