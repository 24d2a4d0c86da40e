package encryption

import (
	"fmt"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// NewEncryptorFromConfig returns the Encryptor named by cfg.Type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (bm.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption needs public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "plain":
		return NewPlainEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
