// Package secret encrypts and decrypts small pieces of key material with an
// AES-256-GCM data key held in Secret Manager. The data key is fetched once
// per process and never persisted alongside the ciphertexts.
package secret

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/truly-video/go-truly/env"
	"google.golang.org/api/option"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

func init() {
	env.RegisterValidation("KMS_KEY_ID", "required")
}

// Cypher encrypts and decrypts strings. Ciphertexts are opaque to callers.
type Cypher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSCypher is a Cypher backed by a Secret Manager hosted data key.
type KMSCypher struct {
	client  *secretmanager.Client
	keyName string

	once sync.Once
	aead cipher.AEAD
	err  error
}

// NewCypher creates a cypher using the data key named by KMS_KEY_ID. The key
// is resolved lazily so that constructing the cypher never blocks startup.
func NewCypher(client *secretmanager.Client) *KMSCypher {
	return &KMSCypher{client: client, keyName: env.GetString("KMS_KEY_ID")}
}

func (c *KMSCypher) hydrate(ctx context.Context) (cipher.AEAD, error) {
	c.once.Do(func() {
		resp, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: c.keyName})
		if err != nil {
			c.err = fmt.Errorf("accessing data key %s: %w", c.keyName, err)
			return
		}
		keyBytes, err := hex.DecodeString(string(resp.Payload.Data))
		if err != nil {
			c.err = fmt.Errorf("data key %s is not hex encoded: %w", c.keyName, err)
			return
		}
		block, err := aes.NewCipher(keyBytes)
		if err != nil {
			c.err = fmt.Errorf("building cipher: %w", err)
			return
		}
		c.aead, c.err = cipher.NewGCM(block)
	})
	return c.aead, c.err
}

// Encrypt seals plaintext and returns a base64 ciphertext with the nonce prepended.
func (c *KMSCypher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	aead, err := c.hydrate(ctx)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *KMSCypher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	aead, err := c.hydrate(ctx)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not base64: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	opened, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(opened), nil
}

// NewSecretManagerClient creates a Secret Manager client
func NewSecretManagerClient(ctx context.Context) *secretmanager.Client {
	copts := []option.ClientOption{}
	if key := env.GetString("GCLOUD_SERVICE_KEY_OVERRIDE"); key != "" {
		copts = append(copts, option.WithCredentialsFile(key))
	}
	client, err := secretmanager.NewClient(ctx, copts...)
	if err != nil {
		panic(err)
	}
	return client
}
