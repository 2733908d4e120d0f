package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/openbook/params"
	"github.com/uhyunpark/openbook/pkg/api"
	"github.com/uhyunpark/openbook/pkg/core/engine"
	"github.com/uhyunpark/openbook/pkg/events"
	"github.com/uhyunpark/openbook/pkg/sim"
	"github.com/uhyunpark/openbook/pkg/storage"
	"github.com/uhyunpark/openbook/pkg/util"
)

func main() {
	// .env in the working directory, then environment, then defaults
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.NewPebbleStore(cfg.DataDir)
	if err != nil {
		sugar.Fatalw("storage_init_failed", "data_dir", cfg.DataDir, "err", err)
	}
	defer store.Close()
	sugar.Infow("storage_opened", "data_dir", cfg.DataDir)

	var sink events.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		ks := events.NewKafkaSink(cfg.Kafka.Brokers)
		defer ks.Close()
		sink = ks
		sugar.Infow("kafka_sink_enabled", "brokers", cfg.Kafka.Brokers)
	} else {
		sink = events.NewLogSink(sugar)
		sugar.Info("kafka brokers not configured, events go to the log sink")
	}

	eng := engine.New(store, sink, util.RealClock{}, sugar, cfg.Matching)
	defer eng.Close()

	server := api.NewServer(eng, sugar, cfg.API)
	eng.SetFeeds(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// rebuild book indexes from the persisted order set before traffic starts
	for _, instrument := range cfg.Instruments {
		if _, err := eng.Replay(ctx, instrument); err != nil {
			sugar.Fatalw("book_replay_failed", "instrument", instrument, "err", err)
		}
		sugar.Infow("book_replayed", "instrument", instrument)
	}

	if cfg.Sim.MarketMaker {
		for _, instrument := range cfg.Instruments {
			go sim.NewMarketMaker(eng, instrument, cfg.Sim.QuoteInterval, sugar).Run(ctx)
		}
	}
	if cfg.Sim.RetailTraders {
		for _, instrument := range cfg.Instruments {
			go sim.NewRetailFlow(eng, instrument, cfg.Sim.RetailInterval, sugar).Run(ctx)
		}
	}

	sugar.Infow("exchange_started",
		"instruments", cfg.Instruments,
		"sweep_interval", cfg.Matching.SweepInterval,
		"market_maker", cfg.Sim.MarketMaker,
		"retail_sim", cfg.Sim.RetailTraders)

	ticker := time.NewTicker(cfg.Matching.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			return
		case <-ticker.C:
			if err := eng.ExpireSweep(ctx); err != nil {
				sugar.Errorw("expiry_sweep_failed", "err", err)
			}
		}
	}
}
