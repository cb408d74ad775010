package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerFromBrokers(t *testing.T) {
	t.Parallel()
	w, err := NewProducerFromBrokers("broker1:9092, broker2:9092")
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestNewProducerFromBrokersEmpty(t *testing.T) {
	t.Parallel()
	_, err := NewProducerFromBrokers("   ")
	assert.Error(t, err)
}
