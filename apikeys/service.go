// Package apikeys resolves which AI provider and credential a user's requests run with.
package apikeys

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"trading-journal/config"
	models "trading-journal/database/models_pkg"
	"trading-journal/llm"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrNoProviderConfigured means neither the user nor the server has a usable key
var ErrNoProviderConfigured = errors.New("no AI provider configured")

// ErrEncryptionDisabled is returned by Save when no encryption secret is configured
var ErrEncryptionDisabled = errors.New("provider key storage disabled: ENCRYPTION_KEY not set")

// KeyStore persists encrypted provider keys
type KeyStore interface {
	SaveKey(ctx context.Context, key *models.AIProviderKey) error
	Preferred(ctx context.Context, userID string) (*models.AIProviderKey, error)
	Get(ctx context.Context, userID, provider string) (*models.AIProviderKey, error)
}

// ProviderFactory builds chat clients, used here to validate keys before storing them
type ProviderFactory interface {
	Chat(provider, apiKey, model string) (llm.ChatProvider, error)
}

// Credentials is a decrypted provider selection
type Credentials struct {
	Provider    string
	APIKey      string
	Model       string
	FromDefault bool // true when the server key is used
}

// Service provides access to user AI provider keys with a server-wide fallback
type Service struct {
	store    KeyStore
	factory  ProviderFactory
	defaults config.LLMConfig
	aead     cipher.AEAD // nil when no secret is configured
}

// NewService creates a new API key service.
// An empty secret disables storing keys; server defaults keep working.
func NewService(store KeyStore, factory ProviderFactory, defaults config.LLMConfig, secret string) (*Service, error) {
	s := &Service{
		store:    store,
		factory:  factory,
		defaults: defaults,
	}
	if secret == "" {
		return s, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("trading-journal provider keys"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	s.aead = aead
	return s, nil
}

// ActiveCredentials returns the provider a user's chat and insight requests use:
// the user's preferred stored key, else the server default provider.
func (s *Service) ActiveCredentials(ctx context.Context, userID string) (*Credentials, error) {
	key, err := s.store.Preferred(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get AI keys: %w", err)
	}
	if key != nil && s.aead != nil {
		decrypted, err := s.decryptKey(key.EncryptedKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt AI key: %w", err)
		}
		return &Credentials{Provider: key.Provider, APIKey: decrypted, Model: key.Model}, nil
	}

	provider := s.defaults.DefaultProvider
	apiKey := s.defaultKey(provider)
	if apiKey == "" {
		return nil, ErrNoProviderConfigured
	}
	return &Credentials{Provider: provider, APIKey: apiKey, FromDefault: true}, nil
}

// EmbeddingKey returns the OpenAI-compatible key used for a user's embeddings
func (s *Service) EmbeddingKey(ctx context.Context, userID string) (string, error) {
	key, err := s.store.Get(ctx, userID, llm.ProviderOpenAI)
	if err != nil {
		return "", fmt.Errorf("failed to get embedding key: %w", err)
	}
	if key != nil && s.aead != nil {
		decrypted, err := s.decryptKey(key.EncryptedKey)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt embedding key: %w", err)
		}
		return decrypted, nil
	}
	if s.defaults.OpenAIAPIKey != "" {
		return s.defaults.OpenAIAPIKey, nil
	}
	return "", ErrNoProviderConfigured
}

// Save validates apiKey with the provider, then stores it encrypted
func (s *Service) Save(ctx context.Context, userID, provider, apiKey, model string, preferred bool) error {
	if s.aead == nil {
		return ErrEncryptionDisabled
	}
	apiKey = strings.TrimSpace(apiKey)

	client, err := s.factory.Chat(provider, apiKey, model)
	if err != nil {
		return err
	}
	if err := client.ValidateAPIKey(ctx); err != nil {
		return err
	}

	encrypted, err := s.encryptKey(apiKey)
	if err != nil {
		return err
	}
	return s.store.SaveKey(ctx, &models.AIProviderKey{
		UserID:       userID,
		Provider:     provider,
		EncryptedKey: encrypted,
		Model:        model,
		IsPreferred:  preferred,
	})
}

func (s *Service) defaultKey(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return s.defaults.OpenAIAPIKey
	case llm.ProviderAnthropic:
		return s.defaults.AnthropicAPIKey
	default:
		return ""
	}
}

// encryptKey seals plaintext as base64(nonce || ciphertext)
func (s *Service) encryptKey(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decryptKey opens a value produced by encryptKey
func (s *Service) decryptKey(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
