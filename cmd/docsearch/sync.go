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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poiesic/docsearch/remote"
	"github.com/poiesic/docsearch/replication"
	"github.com/poiesic/docsearch/storage/badger"
	"github.com/urfave/cli/v2"
)

func syncCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireRemote(); err != nil {
		return err
	}

	source, err := remote.New(cfg.Remote.URL, cfg.Remote.Key, cfg.RemoteOptions(slog.Default())...)
	if err != nil {
		return err
	}

	store, err := badger.NewMemoryStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	opts := append(cfg.ReplicationOptions(slog.Default()),
		replication.WithProgress(os.Stderr, c.Int("report-interval")))
	replicator, err := replication.New(source, store, opts...)
	if err != nil {
		return err
	}
	defer replicator.Release()

	report, err := replicator.Run(c.Context)
	if report != nil {
		printReport(c.App.Writer, report)
	}
	if err != nil && !errors.Is(err, replication.ErrRowFailed) {
		return err
	}
	if report.Failed() > 0 {
		return cli.Exit(fmt.Sprintf("%d rows failed to replicate", report.Failed()), 1)
	}
	return nil
}

func printReport(w io.Writer, report *replication.Report) {
	for _, row := range []struct {
		table string
		stats replication.TableStats
	}{
		{replication.TablePages, report.Pages},
		{replication.TableSections, report.Sections},
	} {
		fmt.Fprintf(w, "%-13s fetched=%d upserted=%d unchanged=%d failed=%d batches=%d\n",
			row.table, row.stats.Fetched, row.stats.Upserted, row.stats.Unchanged, row.stats.Failed, row.stats.Fetches)
	}
	for _, rowErr := range report.Errors {
		fmt.Fprintf(w, "  %v\n", rowErr)
	}
	fmt.Fprintf(w, "completed in %s\n", report.Duration)
}
