// Command lambda serves the webhook behind an API Gateway HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/app"
	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/lambdahttp"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cleanup := utils.InitLogger(cfg)
	defer cleanup()

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		utils.Zlog.Error("Failed to assemble application", zap.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	utils.Zlog.Info("Starting lambda handler", zap.String("environment", cfg.Environment))
	lambda.Start(lambdahttp.Handler(a.Router))
}
