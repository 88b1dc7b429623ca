package jobs

const (
	// TaskOutcomeCheck reminds us that a delivered strategy still awaits an
	// outcome report; the worker flags executions stuck without assessment.
	TaskOutcomeCheck = "coach:outcome_check"

	// TaskEmbedBackfill generates and stores embeddings for KB strategies
	// that are missing them.
	TaskEmbedBackfill = "kb:embed_backfill"
)

type OutcomeCheckPayload struct {
	ExecutionID string `json:"execution_id"`
	UserID      string `json:"user_id"`
}

type EmbedBackfillPayload struct {
	StrategyID string `json:"strategy_id,omitempty"` // empty = all missing
}
