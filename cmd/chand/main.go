package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lnchan/chand/chainrpc"
	"github.com/lnchan/chand/chanlog"
	"github.com/lnchan/chand/config"
	"github.com/lnchan/chand/lnode"
	"github.com/lnchan/chand/logging"
	"github.com/lnchan/chand/payments"
	"github.com/lnchan/chand/probe"
)

func main() {
	conf := config.Default()
	seed := config.Setup(&conf)

	chain := chainrpc.New(conf.BitcoindHost, conf.BitcoindUser, conf.BitcoindPass)

	store, err := chanlog.Open(filepath.Join(conf.HomeDir, "channel.db"))
	if err != nil {
		logging.Fatalf("can't open channel store: %s", err.Error())
	}
	defer store.Close()

	attempts, err := probe.Open(filepath.Join(conf.HomeDir, "attempts.db"))
	if err != nil {
		logging.Fatalf("can't open attempt log: %s", err.Error())
	}

	// The engine backend is linked in at build time and picked by name;
	// a binary built without the configured engine can't run at all.
	eng, err := lnode.OpenEngine(conf.Engine, lnode.EngineDeps{
		Fees:      chain,
		Broadcast: chain,
		Persister: store,
		Seed:      seed,
	})
	if err != nil {
		logging.Fatal(err)
	}

	node, err := lnode.NewNode(conf.Params, store, chain, eng,
		payments.NewBook(), attempts, lnode.Options{
			PollInterval:       time.Duration(conf.PollInterval) * time.Second,
			CheckpointInterval: time.Duration(conf.CheckpointInterval) * time.Second,
			ReconnectInterval:  time.Duration(conf.ReconnectInterval) * time.Second,
		})
	if err != nil {
		logging.Fatal(err)
	}

	node.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logging.Infof("received %v, shutting down\n", sig)
	node.Stop()
}
