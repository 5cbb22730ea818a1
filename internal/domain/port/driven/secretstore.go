package driven

// SecretStore encrypts and decrypts secret fields for storage at rest.
// Implementations must be safe for concurrent use.
type SecretStore interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
