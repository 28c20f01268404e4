package vault

// Type identifies a vault backend.
type Type string

const (
	// TypeDotEnv resolves secrets from environment variables.
	TypeDotEnv Type = "dotenv"
)

// KeyWrapSecretURI names the passphrase that wraps persisted master
// keys. This is an obfuscation layer, not a confidentiality boundary:
// the value only has to be stable, not secret.
const KeyWrapSecretURI = "dotenv://KEY_WRAP_PASSPHRASE"
