package main

import (
	"os"
)

func main() {
	// Running inside AWS Lambda: one refresh-and-publish pass per invocation.
	if _, inLambda := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME"); inLambda {
		startLambda()
		return
	}

	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
