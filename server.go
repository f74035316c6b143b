package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/remote"
	"bitbucket.org/mmdatafocus/setledger_offline/syncengine"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"bitbucket.org/mmdatafocus/setledger_offline/workflow"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	logger := config.GetLogger()

	config.MustOpenLocalStore()
	models.MigrateTable()

	orgId := strings.TrimSpace(os.Getenv("ORG_ID"))
	if orgId == "" {
		log.Fatal("ORG_ID is required")
	}
	deviceId := strings.TrimSpace(os.Getenv("DEVICE_ID"))
	if deviceId == "" {
		deviceId = uuid.NewString()
		logger.WithField("deviceId", deviceId).Warn("DEVICE_ID not set, generated an ephemeral one")
	}

	token, err := utils.DeviceTokenGenerate(orgId, deviceId)
	if err != nil {
		log.Fatalf("failed to mint device token: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = utils.SetOrgIdInContext(ctx, orgId)
	ctx = utils.SetDeviceIdInContext(ctx, deviceId)
	ctx = utils.SetTokenInContext(ctx, token)

	bus := events.NewBus()
	client := remote.NewClient()
	engine := syncengine.NewEngine(client, bus)

	if config.AutoSyncEnabled() {
		scheduler := syncengine.NewScheduler(engine, bus)
		go scheduler.Run(ctx)
	} else {
		logger.Warn("auto sync disabled, outbox drains only on force-sync")
	}

	if config.ReservationSweepEnabled() {
		sweeper := workflow.NewReservationSweeper(bus)
		go sweeper.Run(ctx)
	}

	if config.StatusAPIEnabled() {
		go runStatusAPI(ctx, engine, bus)
	}

	logger.WithField("orgId", orgId).Info("setledger offline agent running")
	<-ctx.Done()
	logger.Info("setledger offline agent shutting down")
}
