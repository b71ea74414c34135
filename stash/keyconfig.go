package stash

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Key source names accepted in KeyConfig.Source.
const (
	SourceNone           = "none"
	SourceStatic         = "static"
	SourcePassphrase     = "passphrase"
	SourceKMS            = "kms"
	SourceSSM            = "ssm"
	SourceSecretsManager = "secretsmanager"
)

// KeyConfig selects and configures a KeySource.
type KeyConfig struct {
	Source string `yaml:"source"`

	// Key is a hex or base64 key for the static source.
	Key string `yaml:"key"`

	// PassphraseEnv names the environment variable holding the passphrase.
	PassphraseEnv string `yaml:"passphrase_env"`
	// Salt is hex encoded.
	Salt string `yaml:"salt"`

	KMSKeyID string `yaml:"kms_key_id"`
	// Ciphertext is the base64 KMS-wrapped data key.
	Ciphertext string `yaml:"ciphertext"`

	Parameter string `yaml:"parameter"`
	SecretID  string `yaml:"secret_id"`
	Region    string `yaml:"region"`
}

// Enabled reports whether a key source is configured.
func (c KeyConfig) Enabled() bool {
	return c.Source != "" && c.Source != SourceNone
}

// Build creates the configured KeySource. AWS sources load the default
// credential chain for c.Region.
func (c KeyConfig) Build(ctx context.Context) (KeySource, error) {
	switch c.Source {
	case "", SourceNone:
		return nil, fmt.Errorf("no key source configured")
	case SourceStatic:
		return NewStaticKey(c.Key)
	case SourcePassphrase:
		passphrase := os.Getenv(c.PassphraseEnv)
		if c.PassphraseEnv == "" || passphrase == "" {
			return nil, fmt.Errorf("passphrase environment variable %q is not set", c.PassphraseEnv)
		}
		salt, err := hex.DecodeString(c.Salt)
		if err != nil {
			return nil, fmt.Errorf("invalid salt: %w", err)
		}
		return PassphraseKey{Passphrase: passphrase, Salt: salt}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	switch c.Source {
	case SourceKMS:
		ciphertext, err := base64.StdEncoding.DecodeString(c.Ciphertext)
		if err != nil || len(ciphertext) == 0 {
			return nil, fmt.Errorf("invalid KMS ciphertext")
		}
		return KMSKey{Client: kms.NewFromConfig(awsCfg), KeyID: c.KMSKeyID, Ciphertext: ciphertext}, nil
	case SourceSSM:
		if c.Parameter == "" {
			return nil, fmt.Errorf("SSM parameter name not configured")
		}
		return SSMKey{Client: ssm.NewFromConfig(awsCfg), Name: c.Parameter}, nil
	case SourceSecretsManager:
		if c.SecretID == "" {
			return nil, fmt.Errorf("secret id not configured")
		}
		return SecretKey{Client: secretsmanager.NewFromConfig(awsCfg), SecretID: c.SecretID}, nil
	default:
		return nil, fmt.Errorf("unknown key source %q", c.Source)
	}
}
