// Command tableserver boots one rank of the table server: it reads
// its configuration from the environment, brings up a Runtime, lets
// the model controller declare tables, and waits for an interrupt.
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/anhdinh/lapis-go/client"
	"github.com/anhdinh/lapis-go/config"
	"github.com/anhdinh/lapis-go/pkg/osutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/pkg/xlog/rotate"
	"github.com/anhdinh/lapis-go/runtime"
	"github.com/anhdinh/lapis-go/table"
)

var logger = xlog.NewLogger("tableserver", xlog.INFO)

func init() {
	xlog.SetGlobalMaxLogLevel(xlog.INFO)
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.LogDir != "" {
		f, err := rotate.NewFormatter(rotate.Config{
			Dir:            cfg.LogDir,
			RotateFileSize: cfg.LogRotateBytes,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("tableserver: setting up log rotation: %w", err))
			os.Exit(1)
		}
		xlog.SetFormatter(f)
	}

	rt := runtime.New(runtime.Config{
		Self:          cfg.Self,
		Addrs:         cfg.Addrs,
		Sync:          cfg.Sync,
		NumLocalFIFOs: cfg.NumLocalFIFOs,
		QueueSleep:    cfg.QueueSleep,
		TLSInfo:       cfg.TLSInfo,
	})
	if err := rt.Start(); err != nil {
		logger.Fatalf("starting runtime: %v", err)
	}

	donec := make(chan struct{})
	osutil.RegisterInterruptHandler(func() {
		rt.Shutdown()
		close(donec)
	})
	osutil.WaitForInterruptSignals(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ctrl := client.NewController(rt)
	bootstrapTables(ctrl, cfg)

	logger.Infof("rank %s: serving on %s", cfg.Self, cfg.Addrs[cfg.Self])
	<-donec
	logger.Infof("rank %s: done", cfg.Self)
}

// bootstrapTables declares the tables every rank in this process
// group agrees to create. A real deployment would drive this from
// MODEL_CONFIG; here every rank runs the identical fixed set, and the
// coordinator alone assigns shard owners, right after its own
// CreateTable. It does not wait for the other ranks to create theirs;
// a rank that receives the assignment before creating the table
// ignores it.
func bootstrapTables(ctrl *client.Controller, cfg config.Config) {
	desc := table.Descriptor{Name: "weights", NumShards: len(cfg.Addrs)}
	ctrl.CreateTable(desc)

	coordinator := types.Coordinator(len(cfg.Addrs))
	if cfg.Self != coordinator {
		return
	}
	workers := make([]types.Rank, 0, len(cfg.Addrs))
	for r := range cfg.Addrs {
		workers = append(workers, r)
	}
	owners := client.AssignRoundRobin(desc.NumShards, workers)
	if err := ctrl.AssignShards(desc.Name, owners); err != nil {
		logger.Errorf("assigning shards: %v", err)
	}
}
