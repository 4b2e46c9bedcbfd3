package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduledEvent() events.CloudWatchEvent {
	return events.CloudWatchEvent{ID: "evt-1", DetailType: "Scheduled Event", Source: "aws.events", Time: time.Now()}
}

func TestHandleScheduledEvent_ConfigFromEnv(t *testing.T) {
	govee := fakeGovee(t)
	ha, published := fakeHomeAssistant(t)

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML(govee.URL, ha.URL)), 0o600))
	t.Setenv(lambdaConfigEnv, path)

	require.NoError(t, handleScheduledEvent(context.Background(), scheduledEvent()))
	assert.Equal(t, "68", published.get("sensor.bedroom_temperature"))
}

func TestHandleScheduledEvent_DefaultsToConfigYAML(t *testing.T) {
	govee := fakeGovee(t)
	ha, published := fakeHomeAssistant(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfigYAML(govee.URL, ha.URL)), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(lambdaConfigEnv, "")

	require.NoError(t, handleScheduledEvent(context.Background(), scheduledEvent()))
	assert.Equal(t, "Online", published.get("sensor.bedroom_status"))
}

func TestHandleScheduledEvent_MissingConfig(t *testing.T) {
	t.Setenv(lambdaConfigEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	err := handleScheduledEvent(context.Background(), scheduledEvent())
	assert.Error(t, err)
}
