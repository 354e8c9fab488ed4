package usage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event is one signed ledger row. Negative amounts are corrections.
type Event struct {
	ID            int64           `db:"id"`
	Day           time.Time       `db:"day"`
	Amount        decimal.Decimal `db:"amount"`
	Service       string          `db:"service"`
	TriggerAction string          `db:"trigger_action"`
	UserID        int64           `db:"user_id"`
	PromptID      int64           `db:"prompt_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Bucket is the sum of a calendar period. Period is "2006-01-02" for days and "2006-01" for months.
type Bucket struct {
	Period string
	Amount decimal.Decimal
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Period string `json:"period"`
		Amount string `json:"amount"`
	}{b.Period, b.Amount.StringFixed(2)})
}
