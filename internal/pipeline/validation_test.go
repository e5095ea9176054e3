package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

func TestValidationStage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	stage := NewValidationStage(zap.New(core))

	batch := newBatch(
		models.RawRecord{"containerNumber": "ABCU1234567", "status": "X"},
		models.RawRecord{"containerNumber": "bad", "status": "Y"},
		models.RawRecord{"containerNumber": " MSKU7654321 ", "status": "In Transit"},
		models.RawRecord{"containerNumber": "msku7654321", "status": "In Transit"},
		models.RawRecord{"containerNumber": "MSKU1111111"},
		models.RawRecord{"containerNumber": "MSKU2222222", "status": "  "},
		models.RawRecord{"status": "Loaded"},
		models.RawRecord{"containerNumber": 12345, "status": "Loaded"},
		nil,
	)

	require.NoError(t, stage.Process(context.Background(), batch))
	require.Len(t, batch.Raw, 2)
	assert.Equal(t, "ABCU1234567", batch.Raw[0]["containerNumber"])
	assert.Equal(t, " MSKU7654321 ", batch.Raw[1]["containerNumber"])
	assert.Equal(t, 7, logs.Len())
}

func TestValidationStageEmptyBatch(t *testing.T) {
	batch := newBatch()
	require.NoError(t, NewValidationStage(nil).Process(context.Background(), batch))
	assert.Empty(t, batch.Raw)
}
