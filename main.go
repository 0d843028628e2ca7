package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/patiee/giftstorage/chain"
	"github.com/patiee/giftstorage/indexer"
	"github.com/patiee/giftstorage/neynar"
	"github.com/patiee/giftstorage/server"
)

func main() {
	// Initialize Logger
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load .env files (ignore error if file not found)
	if err := godotenv.Load(); err != nil {
		logger.Println("No .env file found, using system env vars")
	}

	var config server.Config
	if err := env.Parse(&config); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if config.FrameSecret == "" {
		logger.Warn("FRAME_SECRET is not set, state tokens are signed with a development secret")
	}
	if config.NeynarAPIKey == "" {
		logger.Warn("NEYNAR_API_KEY is not set, user lookups will fail")
	}

	// Directory + announcements
	directory := neynar.New(config.NeynarBaseURL, config.NeynarAPIKey, config.HTTPTimeout)
	var announcer server.Announcer
	if config.NeynarSignerUUID != "" {
		announcer = directory
	}

	// Chain
	rpc, err := ethclient.Dial(config.EthRPCURL)
	if err != nil {
		logger.Fatalf("Failed to connect to eth rpc: %v", err)
	}
	defer rpc.Close()

	registry, err := chain.NewStorageRegistry(rpc, config.StorageRegistryAddress, config.ChainID)
	if err != nil {
		logger.Fatalf("Storage registry initialization failed: %v", err)
	}

	// Indexer
	var poller indexer.Poller
	if config.IndexerMode == "receipt" {
		logger.Println("Polling transaction receipts instead of the indexer")
		poller = indexer.NewReceiptPoller(rpc)
	} else {
		poller = indexer.New(config.IndexerURL, config.HTTPTimeout)
	}

	// Init and Start Server
	var validator server.Validator
	if config.NeynarAPIKey != "" {
		validator = directory
	} else {
		logger.Warn("Frame messages are not validated, gifts will be announced without a giver")
	}

	service := server.NewService(config, logger, directory, validator, poller, registry, announcer)
	srv := server.New(logger, service, config)
	srv.Start()
}
