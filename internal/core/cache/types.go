package cache

// Type identifies an ephemeral-tier backend.
type Type string

const (
	// TypeRedis selects the Redis backend.
	TypeRedis Type = "redis"
)

// Key prefixes for the entries the companion stores in the ephemeral
// tier, keyed by instance id.
const (
	// MasterKeyPrefix + <instanceID> holds a session-scoped master key.
	MasterKeyPrefix = "masterKey_"

	// SessionPrefix + <instanceID> holds a serialized appliance session.
	SessionPrefix = "session_"
)

// MasterKeyKey returns the ephemeral-tier key for an instance's master key.
func MasterKeyKey(instanceID string) string {
	return MasterKeyPrefix + instanceID
}

// SessionKey returns the ephemeral-tier key for an instance's session.
func SessionKey(instanceID string) string {
	return SessionPrefix + instanceID
}
