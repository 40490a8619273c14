// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/solidcoredata/vmeta/internal/settings"
	"github.com/solidcoredata/vmeta/internal/start"
	"github.com/solidcoredata/vmeta/meta"
	"github.com/solidcoredata/vmeta/meta/store"
	"github.com/solidcoredata/vmeta/rpc"
)

func main() {
	flag.Parse()

	// settings registers its own -config flag at package init; Load("")
	// falls back to it.
	cfg, err := settings.Load("")
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	stopTimeout := time.Duration(cfg.StopTimeoutSeconds) * time.Second
	if err := start.Start(context.Background(), stopTimeout, run(cfg, logger)); err != nil {
		logger.Sugar().Fatalw("metad exited", "err", err)
	}
}

func run(cfg settings.Settings, logger *zap.Logger) start.StartFunc {
	return func(ctx context.Context) error {
		reg := meta.New(meta.Config{
			ShardID:   cfg.ShardID,
			MaxTables: cfg.MaxTables,
			Logger:    logger,
		})

		// The production LogStore binding (a real KV engine) is a host
		// concern out of this repository's scope (spec §1); Memory is
		// the in-process default so metad is runnable standalone.
		driver := store.New(store.Config{
			LogStore: store.NewMemory(),
			Path:     filepath.Join(cfg.RootDir, cfg.LogStorePath),
			Registry: reg,
			Logger:   logger,
		})
		if err := driver.Open(ctx); err != nil {
			return err
		}
		defer driver.Close(ctx)
		reg.SetEmitter(driver.Emitter())

		// svc is where a transport (out of scope, spec §1) would bind
		// incoming CreateTable/DropTable/UpdateTagValue requests.
		svc := &rpc.Service{Registry: reg}
		_ = svc

		return start.RunAll(ctx,
			func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		)
	}
}
