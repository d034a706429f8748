// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/poiesic/docsearch"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/protocol/natsport"
	"github.com/poiesic/docsearch/remote"
	"github.com/poiesic/docsearch/replication"
	"github.com/poiesic/docsearch/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func workerCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := slog.Default()

	loader, err := docsearch.NewLoader(cfg.AI(), cfg.Embedding.Token)
	if err != nil {
		return err
	}

	conn, err := nats.Connect(cfg.NATS.URL, nats.Name("docsearch-worker"))
	if err != nil {
		return err
	}
	defer conn.Close()

	port, err := natsport.New(conn, natsport.Worker,
		natsport.WithPrefix(cfg.NATS.Prefix),
		natsport.WithLogger(logger))
	if err != nil {
		return err
	}
	defer port.Close()

	w, err := worker.New(port, loader,
		worker.WithSourceFactory(func(remoteURL, remoteKey string) (replication.Source, error) {
			if remoteURL == "" {
				remoteURL, remoteKey = cfg.Remote.URL, cfg.Remote.Key
			}
			rc, err := remote.New(remoteURL, remoteKey, cfg.RemoteOptions(logger)...)
			if err != nil {
				return nil, err
			}
			return rc, nil
		}),
		worker.WithExtractorOptions(ai.WithExpectedDimension(cfg.Embedding.Dimension)),
		worker.WithReplicationOptions(cfg.ReplicationOptions(logger)...),
		worker.WithSearchOptions(cfg.SearchOptions()...),
		worker.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if addr := c.String("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("serving worker", "nats", cfg.NATS.URL, "prefix", cfg.NATS.Prefix, "session", w.ID())
	return w.Run(ctx)
}
