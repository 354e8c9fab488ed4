package prompts

// Config is the system template plus model parameters used for one completion pass.
type Config struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Template    string  `db:"template" json:"template"`
	Model       string  `db:"model" json:"model"`
	Temperature float64 `db:"temperature" json:"temperature"`
	MaxTokens   int     `db:"max_tokens" json:"max_tokens"`
}
