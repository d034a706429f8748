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

// Package docsearch wires a search worker and a search client into an Engine.
//
// The worker mirrors the remote page and page_section tables into an
// in-memory store, loads the query embedding model, and answers searches
// locally once both are done. The client sends each query to the worker
// when it is ready and to the remote full-text and embedding endpoints
// otherwise, folding every answer into a searchstate.State.
//
//	cfg, _ := config.Load("docsearch.yaml")
//	engine, err := docsearch.NewEngine(cfg)
//	if err != nil { ... }
//	defer engine.Close()
//	engine.Start(ctx)
//	state, err := engine.Query(ctx, "row level security")
//
// Worker and client talk over a protocol.Port. By default that is an
// in-process protocol.Hub; WithPorts connects them over NATS instead.
package docsearch
