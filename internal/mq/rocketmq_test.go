package mq

import (
	"context"
	"testing"

	"github.com/church-treasury-core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRocketMQClient_DisabledDegrades(t *testing.T) {
	client, err := NewRocketMQClient(config.RocketMQConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Equal(t, DefaultNotifyTopic, client.topic)

	err = client.PublishRequisitionEvent(context.Background(), RequisitionEvent{
		Event:         EventRequisitionCreated,
		RequisitionID: "req-1",
	})
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestNewRocketMQClient_ConfiguredTopic(t *testing.T) {
	client, err := NewRocketMQClient(config.RocketMQConfig{Topics: []string{"treasury-events"}})
	require.NoError(t, err)
	assert.Equal(t, "treasury-events", client.topic)
}

func TestKeysOf(t *testing.T) {
	assert.Equal(t, []string{"req-1"}, keysOf(RequisitionEvent{RequisitionID: "req-1"}))
	assert.Nil(t, keysOf(map[string]string{"a": "b"}))
}
