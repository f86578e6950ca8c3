package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-dispatch/internal/config"
)

func TestCheckDriver(t *testing.T) {
	assert.NoError(t, checkDriver(config.QueueConfig{Driver: "rabbitmq", Name: "campaign_runs"}))
	assert.Error(t, checkDriver(config.QueueConfig{Driver: "memory", Name: "campaign_runs"}))
	assert.Error(t, checkDriver(config.QueueConfig{Driver: "rabbitmq"}))
}
