package vault

import (
	"context"
	"fmt"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// NewVaultFromConfig creates the vault named by cfg.Type. When cfg.Encrypted
// is set the vault is wrapped in an EncryptedVault using enc.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig, enc bm.Encryptor) (bm.Vault, error) {
	var (
		v   bm.Vault
		err error
	)
	switch cfg.Type {
	case "memory":
		v = NewMemoryVault()
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err = openFileSystem(cfg.FSVaultRoot)
	case "s3":
		v, err = openS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypted {
		if enc == nil {
			return nil, fmt.Errorf("encrypted vault requires an encryptor")
		}
		v = NewEncryptedVault(v, enc)
	}
	return v, nil
}

func openFileSystem(root string) (bm.Vault, error) {
	v, err := NewFileSystemVault(root)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func openS3(ctx context.Context, cfg config.VaultConfig) (bm.Vault, error) {
	v, err := NewS3Vault(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return v, nil
}
