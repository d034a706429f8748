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

// Package protocol defines the messages exchanged between a search host and
// its worker, and the ports they travel over.
//
// Every message is a JSON envelope {"v":1,"type":...,"payload":...}. The
// host sends INIT, SEARCH and ABORT_SEARCH. The worker answers with
// CHECKPOINT, ERROR, SEARCH_ERROR, SEARCH_RESULTS and NOT_READY.
//
// Hub is the in-process channel. The natsport subpackage carries the same
// envelopes over NATS for hosts in other processes.
//
// Usage:
//
//	hub, _ := protocol.NewHub()
//	unsubscribe := hub.Host().Subscribe(func(msg protocol.Message) {
//	    if cp, ok := msg.(protocol.Checkpoint); ok {
//	        fmt.Println("worker is", cp.Status)
//	    }
//	})
//	defer unsubscribe()
//	hub.Host().Post(ctx, protocol.Init{RemoteURL: url, RemoteKey: key})
package protocol
