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
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/docsearch/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	remoteFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "remote-url",
			Usage:   "Base URL of the remote content store",
			EnvVars: []string{"DOCSEARCH_REMOTE_URL"},
		},
		&cli.StringFlag{
			Name:    "remote-key",
			Usage:   "API key for the remote content store",
			EnvVars: []string{"DOCSEARCH_REMOTE_KEY"},
		},
	}

	return &cli.App{
		Name:  "docsearch",
		Usage: "Local-first hybrid search over a remote docs site",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"DOCSEARCH_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Replicate the remote pages and sections and report the outcome",
				Action: syncCommand,
				Flags: append(remoteFlags,
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N rows",
						Value: 500,
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Run one query and print the results as JSON",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(remoteFlags,
					&cli.BoolFlag{
						Name:  "skip-worker",
						Usage: "Search the remote without starting a local worker",
					},
					&cli.StringFlag{
						Name:  "nats-url",
						Usage: "Use a worker served over NATS instead of an in-process one",
					},
					&cli.DurationFlag{
						Name:  "ready-timeout",
						Usage: "How long to wait for the worker before searching the remote",
						Value: 2 * time.Minute,
					},
				),
			},
			{
				Name:   "worker",
				Usage:  "Serve a search worker over NATS",
				Action: workerCommand,
				Flags: append(remoteFlags,
					&cli.StringFlag{
						Name:  "nats-url",
						Usage: "NATS server URL",
						Value: "nats://127.0.0.1:4222",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (disabled when empty)",
					},
				),
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads --config and the environment, then applies command flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("remote-url") {
		cfg.Remote.URL = c.String("remote-url")
	}
	if c.IsSet("remote-key") {
		cfg.Remote.Key = c.String("remote-key")
	}
	if c.IsSet("skip-worker") {
		cfg.Search.SkipWorker = c.Bool("skip-worker")
	}
	if c.IsSet("nats-url") || (cfg.NATS.URL == "" && c.String("nats-url") != "") {
		cfg.NATS.URL = c.String("nats-url")
	}
	return cfg, nil
}
