package vault

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/models"
	"github.com/ajitpratap0/freightsync/pkg/store"
)

var testCreds = models.Credentials{"api_key": "s3cret", "username": "ops"}

func newVault(t *testing.T, active string, keys map[string]string, audit store.AuditStore) *AESVault {
	t.Helper()
	v, err := New(config.VaultConfig{ActiveKeyID: active, Keys: keys}, audit,
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	return v
}

func TestRoundTrip(t *testing.T) {
	v := newVault(t, "k1", map[string]string{"k1": "first-master-secret"}, nil)
	ctx := context.Background()

	blob, err := v.Encrypt(ctx, testCreds)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, "v1:k1:"))
	assert.NotContains(t, blob, "s3cret")

	again, err := v.Encrypt(ctx, testCreds)
	require.NoError(t, err)
	assert.NotEqual(t, blob, again, "fresh nonce per seal")

	got, err := v.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, testCreds, got)
}

func TestRotation(t *testing.T) {
	ctx := context.Background()
	old := newVault(t, "k1", map[string]string{"k1": "first-master-secret"}, nil)
	blob, err := old.Encrypt(ctx, testCreds)
	require.NoError(t, err)

	rotated := newVault(t, "k2", map[string]string{
		"k1": "first-master-secret",
		"k2": "second-master-secret",
	}, nil)

	got, err := rotated.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, testCreds, got)

	resealed, err := rotated.Reencrypt(ctx, blob)
	require.NoError(t, err)
	id, err := KeyID(resealed)
	require.NoError(t, err)
	assert.Equal(t, "k2", id)

	same, err := rotated.Reencrypt(ctx, resealed)
	require.NoError(t, err)
	assert.Equal(t, resealed, same)

	_, err = old.Decrypt(ctx, resealed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestDecryptRejectsTampering(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, "k1", map[string]string{
		"k1": "first-master-secret",
		"k2": "second-master-secret",
	}, nil)
	blob, err := v.Encrypt(ctx, testCreds)
	require.NoError(t, err)

	// relabelled key id fails authentication
	_, err = v.Decrypt(ctx, strings.Replace(blob, "v1:k1:", "v1:k2:", 1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))

	for _, bad := range []string{"", "plain", "v2:k1:abc", "v1::abc", "v1:k1:!!notbase64", "v1:k1:YWJj"} {
		_, err := v.Decrypt(ctx, bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData), bad)
	}
}

func TestNewValidatesKeys(t *testing.T) {
	_, err := New(config.VaultConfig{ActiveKeyID: "k1"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(config.VaultConfig{ActiveKeyID: "k9", Keys: map[string]string{"k1": "first-master-secret"}}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(config.VaultConfig{ActiveKeyID: "a:b", Keys: map[string]string{"a:b": "first-master-secret"}}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestAuditTrail(t *testing.T) {
	audit := store.NewMemory().Audit()
	v := newVault(t, "k1", map[string]string{"k1": "first-master-secret"}, audit)

	ctx := context.WithValue(context.Background(), logger.ConnectionIDKey, "conn-1")
	ctx = context.WithValue(ctx, logger.CarrierIDKey, "maersk")

	blob, err := v.Encrypt(ctx, testCreds)
	require.NoError(t, err)
	_, err = v.Decrypt(ctx, blob)
	require.NoError(t, err)
	require.NoError(t, v.LogAudit(ctx, models.AuditEvent{Action: models.AuditDataFetched, DataType: "tracking"}))

	events, err := audit.List(context.Background(), store.AuditFilter{ConnectionID: "conn-1"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.AuditDataFetched, events[0].Action)
	assert.Equal(t, models.AuditCredentialsDecrypted, events[1].Action)
	assert.Equal(t, models.AuditCredentialsEncrypted, events[2].Action)
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "maersk", e.CarrierID)
		assert.Equal(t, 2026, e.Timestamp.Year())
	}
}
