package dynamo

// DynamoDB attribute names used in key, update and condition expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail      = "email"
	fieldVerified   = "verified"
	fieldVerifiedAt = "verified_at"
	fieldUpdatedAt  = "updated_at"
	fieldPurgeAt    = "purge_at"
	fieldChallenge  = "challenge"
	fieldCodeHash   = "code_hash"
	fieldExpiresAt  = "expires_at"
	fieldAttempts   = "attempts_remaining"
)
