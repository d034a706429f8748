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
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/poiesic/docsearch"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/protocol/natsport"
	"github.com/poiesic/docsearch/searchstate"
	"github.com/urfave/cli/v2"
)

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []docsearch.Option{docsearch.WithLogger(slog.Default())}
	if cfg.NATS.URL != "" && !cfg.Search.SkipWorker {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("docsearch-search"))
		if err != nil {
			return err
		}
		defer conn.Close()
		host, err := natsport.New(conn, natsport.Host, natsport.WithPrefix(cfg.NATS.Prefix))
		if err != nil {
			return err
		}
		defer host.Close()
		opts = append(opts, docsearch.WithPorts(host, nil))
	}

	engine, err := docsearch.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if !cfg.Search.SkipWorker {
		readyCtx, cancel := context.WithTimeout(ctx, c.Duration("ready-timeout"))
		err := engine.Start(readyCtx)
		if err == nil {
			err = engine.WaitReady(readyCtx)
		}
		cancel()
		if err != nil {
			slog.Warn("local search unavailable, using remote", "err", err)
		}
	}

	state, err := engine.Query(ctx, query)
	if err != nil {
		return err
	}
	return printState(c.App.Writer, state)
}

type output struct {
	Status  string              `json:"status"`
	Partial bool                `json:"partial,omitempty"`
	Message string              `json:"message,omitempty"`
	Results []core.SearchResult `json:"results"`
}

func printState(w io.Writer, state searchstate.State) error {
	out := output{
		Status:  state.Status.String(),
		Partial: state.Partial,
		Message: state.Message,
		Results: state.Results,
	}
	if out.Results == nil {
		out.Results = []core.SearchResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
