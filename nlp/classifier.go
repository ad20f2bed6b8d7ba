// Package nlp talks to the intent/extraction oracle. Every call degrades to
// a safe default on failure: classification problems must never surface to
// the end user as errors.
package nlp

import "context"

type Intention string

const (
	IntentionTransaction Intention = "transaction"
	IntentionGreeting    Intention = "greeting"
	IntentionHelp        Intention = "help"
	IntentionBalance     Intention = "balance"
	IntentionUnknown     Intention = "unknown"
)

// ExtractedTransaction is the oracle's reading of a free-form money phrase.
// Amount is nil when no number could be extracted; the transaction is still
// recorded and the user is told the amount was not detected.
type ExtractedTransaction struct {
	Kind     string `json:"type"` // "expense" or "income"
	Category string `json:"category"`
	Amount   *int64 `json:"amount"`
}

// SafeExtraction is the fallback when the oracle fails or returns garbage.
func SafeExtraction() ExtractedTransaction {
	return ExtractedTransaction{Kind: "expense", Category: "Otros", Amount: nil}
}

type Classifier interface {
	DetectIntention(ctx context.Context, message string) Intention
	ExtractTransaction(ctx context.Context, description string) ExtractedTransaction
}
