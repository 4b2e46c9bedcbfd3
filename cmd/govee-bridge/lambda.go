package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"govee-bridge/config"
)

const lambdaConfigEnv = "GOVEE_BRIDGE_CONFIG"

// handleScheduledEvent refreshes every device once per CloudWatch schedule
// tick and publishes to Home Assistant and MQTT.
func handleScheduledEvent(ctx context.Context, e events.CloudWatchEvent) error {
	path := os.Getenv(lambdaConfigEnv)
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	out := &output{w: os.Stdout, logger: setupLogger(cfg.Log, os.Stderr)}
	out.logger.Info("scheduled refresh", "event_id", e.ID, "time", e.Time)

	if err := runSync(ctx, cfg, out); err != nil {
		return fmt.Errorf("scheduled refresh: %w", err)
	}
	return nil
}

func startLambda() {
	lambda.Start(handleScheduledEvent)
}
