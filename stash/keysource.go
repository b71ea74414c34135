package stash

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

// KeySource supplies the data key sealing the stash at rest.
type KeySource interface {
	DataKey(ctx context.Context) ([]byte, error)
}

// StaticKey is a data key held in configuration.
type StaticKey []byte

// NewStaticKey parses a hex or base64 encoded key.
func NewStaticKey(encoded string) (StaticKey, error) {
	key, err := decodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return StaticKey(key), nil
}

func (k StaticKey) DataKey(context.Context) ([]byte, error) {
	return box.Clone(k), nil
}

// PassphraseKey derives the data key from a passphrase with Argon2id.
type PassphraseKey struct {
	Passphrase string
	Salt       []byte
}

func (p PassphraseKey) DataKey(context.Context) ([]byte, error) {
	if p.Passphrase == "" {
		return nil, fmt.Errorf("passphrase is empty")
	}
	if len(p.Salt) < 16 {
		return nil, fmt.Errorf("salt must be at least 16 bytes")
	}
	return box.DeriveKey([]byte(p.Passphrase), p.Salt), nil
}

// KMSAPI is the subset of the KMS client used by KMSKey.
type KMSAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
}

// KMSKey unwraps a KMS-encrypted data key (envelope encryption).
type KMSKey struct {
	Client     KMSAPI
	KeyID      string
	Ciphertext []byte
}

func (k KMSKey) DataKey(ctx context.Context) ([]byte, error) {
	input := &kms.DecryptInput{CiphertextBlob: k.Ciphertext}
	if k.KeyID != "" {
		input.KeyId = aws.String(k.KeyID)
	}
	result, err := k.Client.Decrypt(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("KMS decrypt failed: %w", err)
	}
	if result.Plaintext == nil {
		return nil, fmt.Errorf("KMS decrypt returned no data")
	}
	log.Debug().
		Int("ciphertext_len", len(k.Ciphertext)).
		Msg("KMS data key unwrapped")
	return result.Plaintext, nil
}

// GenerateKMSDataKey creates a fresh data key under keyID. The ciphertext is
// what KMSKey expects in configuration.
func GenerateKMSDataKey(ctx context.Context, client KMSAPI, keyID string) (plaintext, ciphertext []byte, err error) {
	if keyID == "" {
		return nil, nil, fmt.Errorf("KMS key id not configured")
	}
	result, err := client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(keyID),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("KMS generate data key failed: %w", err)
	}
	return result.Plaintext, result.CiphertextBlob, nil
}

// SSMAPI is the subset of the SSM client used by SSMKey.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMKey reads a hex or base64 data key from a SecureString parameter.
type SSMKey struct {
	Client SSMAPI
	Name   string
}

func (k SSMKey) DataKey(ctx context.Context) ([]byte, error) {
	result, err := k.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(k.Name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter %s: %w", k.Name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", k.Name)
	}
	return decodeKey(*result.Parameter.Value)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used by
// SecretKey.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretKey reads the data key from a secret: raw bytes in SecretBinary, or
// hex/base64 text in SecretString.
type SecretKey struct {
	Client   SecretsManagerAPI
	SecretID string
}

func (k SecretKey) DataKey(ctx context.Context) ([]byte, error) {
	result, err := k.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(k.SecretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", k.SecretID, err)
	}
	if len(result.SecretBinary) > 0 {
		return result.SecretBinary, nil
	}
	if result.SecretString != nil {
		return decodeKey(*result.SecretString)
	}
	return nil, fmt.Errorf("secret %s has no value", k.SecretID)
}

// decodeKey accepts a KeySize key as hex or standard base64.
func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == box.KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == box.KeySize {
		return key, nil
	}
	return nil, fmt.Errorf("key must be %d bytes encoded as hex or base64", box.KeySize)
}
