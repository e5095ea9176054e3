// Package vault encrypts connection credentials at rest.
//
// Blobs have the form v1:<keyID>:<base64(nonce || ciphertext)>. Each key id
// maps to a configured master secret from which an AES-256 key is derived
// with HKDF-SHA256. The active key encrypts; every configured key decrypts,
// so secrets can be rotated by adding a key, switching ActiveKeyID and
// re-encrypting stored blobs with Reencrypt.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/models"
	"github.com/ajitpratap0/freightsync/pkg/store"
)

const (
	blobVersion = "v1"
	hkdfSalt    = "freightsync-vault-v1"
	keySize     = 32
)

// Vault seals and opens credentials and records credential audit events.
type Vault interface {
	Encrypt(ctx context.Context, creds models.Credentials) (string, error)
	Decrypt(ctx context.Context, blob string) (models.Credentials, error)
	LogAudit(ctx context.Context, event models.AuditEvent) error
}

// AESVault is the AES-256-GCM Vault.
type AESVault struct {
	keys   map[string]cipher.AEAD
	active string
	audit  store.AuditStore
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an AESVault.
type Option func(*AESVault)

// WithClock replaces time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *AESVault) { v.now = now }
}

// WithLogger sets the vault's logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *AESVault) { v.logger = l }
}

// New derives a cipher per configured key. audit may be nil, in which case
// audit events are only logged.
func New(cfg config.VaultConfig, audit store.AuditStore, opts ...Option) (*AESVault, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "vault has no keys")
	}
	if _, ok := cfg.Keys[cfg.ActiveKeyID]; !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "active vault key %q is not configured", cfg.ActiveKeyID)
	}

	v := &AESVault{
		keys:   make(map[string]cipher.AEAD, len(cfg.Keys)),
		active: cfg.ActiveKeyID,
		audit:  audit,
		logger: logger.Get().With(zap.String("component", "vault")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	for id, secret := range cfg.Keys {
		if id == "" || strings.Contains(id, ":") {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid vault key id %q", id)
		}
		aead, err := deriveAEAD(id, secret)
		if err != nil {
			return nil, err
		}
		v.keys[id] = aead
	}
	return v, nil
}

func deriveAEAD(keyID, secret string) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte("credentials:"+keyID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to derive vault key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create gcm")
	}
	return aead, nil
}

// ActiveKeyID is the id new blobs are sealed under.
func (v *AESVault) ActiveKeyID() string { return v.active }

// Encrypt implements Vault.
func (v *AESVault) Encrypt(ctx context.Context, creds models.Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode credentials")
	}

	aead := v.keys[v.active]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to generate nonce")
	}
	sealed := aead.Seal(nonce, nonce, plain, additionalData(v.active))

	_ = v.LogAudit(ctx, models.AuditEvent{
		Action:  models.AuditCredentialsEncrypted,
		Details: map[string]interface{}{"key_id": v.active},
	})
	return blobVersion + ":" + v.active + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt implements Vault.
func (v *AESVault) Decrypt(ctx context.Context, blob string) (models.Credentials, error) {
	keyID, payload, err := splitBlob(blob)
	if err != nil {
		return nil, err
	}
	aead, ok := v.keys[keyID]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeAuthentication, "credentials sealed with unknown key %q", keyID).
			WithDetail("key_id", keyID)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed credential blob")
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New(errors.ErrorTypeData, "credential blob too short")
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, additionalData(keyID))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to decrypt credentials").
			WithDetail("key_id", keyID)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode credentials")
	}

	_ = v.LogAudit(ctx, models.AuditEvent{
		Action:  models.AuditCredentialsDecrypted,
		Details: map[string]interface{}{"key_id": keyID},
	})
	return creds, nil
}

// Reencrypt reseals blob under the active key. Blobs already under the
// active key are returned unchanged.
func (v *AESVault) Reencrypt(ctx context.Context, blob string) (string, error) {
	keyID, _, err := splitBlob(blob)
	if err != nil {
		return "", err
	}
	if keyID == v.active {
		return blob, nil
	}
	creds, err := v.Decrypt(ctx, blob)
	if err != nil {
		return "", err
	}
	return v.Encrypt(ctx, creds)
}

// LogAudit implements Vault. Connection and carrier ids missing from event
// are taken from ctx.
func (v *AESVault) LogAudit(ctx context.Context, event models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = v.now().UTC()
	}
	if event.ConnectionID == "" {
		event.ConnectionID, _ = ctx.Value(logger.ConnectionIDKey).(string)
	}
	if event.CarrierID == "" {
		event.CarrierID, _ = ctx.Value(logger.CarrierIDKey).(string)
	}

	v.logger.Debug("audit",
		zap.String("action", string(event.Action)),
		zap.String("connection_id", event.ConnectionID),
		zap.String("carrier_id", event.CarrierID),
		zap.String("error", event.Error))

	if v.audit == nil {
		return nil
	}
	if err := v.audit.Append(ctx, event); err != nil {
		v.logger.Warn("failed to persist audit event", zap.Error(err))
		return err
	}
	return nil
}

// KeyID returns the key id a blob was sealed with.
func KeyID(blob string) (string, error) {
	id, _, err := splitBlob(blob)
	return id, err
}

func splitBlob(blob string) (keyID, payload string, err error) {
	parts := strings.SplitN(blob, ":", 3)
	if len(parts) != 3 || parts[0] != blobVersion || parts[1] == "" {
		return "", "", errors.New(errors.ErrorTypeData, "malformed credential blob")
	}
	return parts[1], parts[2], nil
}

func additionalData(keyID string) []byte {
	return []byte(blobVersion + ":" + keyID)
}
