package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fxledger/internal/core"
	"fxledger/internal/fx"
)

// RatesRefreshed announces that a rate series was refreshed and saved.
// Consumers reload the series from the store; the message carries only
// its coverage.
type RatesRefreshed struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	First        core.Date `json:"first"`
	Last         core.Date `json:"last"`
	Observations int       `json:"observations"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRatesRefreshed creates a message describing one cached series.
func NewRatesRefreshed(info fx.SeriesInfo) *RatesRefreshed {
	return &RatesRefreshed{
		ID:           uuid.NewString(),
		Pair:         info.Pair.Key(),
		First:        info.First,
		Last:         info.Last,
		Observations: info.Observations,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RatesRefreshed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RatesRefreshedFromJSON creates a message from JSON bytes
func RatesRefreshedFromJSON(data []byte) (*RatesRefreshed, error) {
	var msg RatesRefreshed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Pair == "" {
		return nil, fmt.Errorf("rates refreshed message %q without pair", msg.ID)
	}
	return &msg, nil
}
