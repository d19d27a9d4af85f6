// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/outpost/lib/testutil"
	"github.com/bureau-foundation/outpost/protocol"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	manager := NewManager(slog.New(slog.DiscardHandler), 0)
	t.Cleanup(manager.Shutdown)
	return manager
}

// collectStream drains a process's emissions until the terminal done
// event, returning the ordered payloads.
func collectStream(t *testing.T, emissions <-chan protocol.ResponseArgs) []protocol.ResponseArgs {
	t.Helper()
	var stream []protocol.ResponseArgs
	for {
		payload := testutil.RequireReceive(t, emissions, 10*time.Second, "waiting for process event")
		stream = append(stream, payload)
		if _, done := payload.(*protocol.ProcDone); done {
			return stream
		}
	}
}

func TestSpawnEchoStreamSequence(t *testing.T) {
	manager := testManager(t)
	emissions := make(chan protocol.ResponseArgs, 64)

	process, err := manager.Spawn(1, protocol.ProcSpawn{Cmd: "echo", Args: []string{"hello"}},
		func(payload protocol.ResponseArgs) { emissions <- payload })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	stream := collectStream(t, emissions)

	spawned, ok := stream[0].(*protocol.ProcSpawned)
	if !ok {
		t.Fatalf("first payload: %#v", stream[0])
	}
	if spawned.ID != process.ID() || spawned.Pid != process.Pid() {
		t.Errorf("spawned ids: %+v vs process %d/%d", spawned, process.ID(), process.Pid())
	}

	var output bytes.Buffer
	spawnedCount, doneCount := 0, 0
	for _, payload := range stream {
		switch typed := payload.(type) {
		case *protocol.ProcSpawned:
			spawnedCount++
		case *protocol.ProcStdout:
			output.Write(typed.Data)
		case *protocol.ProcDone:
			doneCount++
			if !typed.Success {
				t.Errorf("done not successful: %+v", typed)
			}
			if typed.Code == nil || *typed.Code != 0 {
				t.Errorf("exit code: %+v", typed.Code)
			}
		}
	}
	if spawnedCount != 1 || doneCount != 1 {
		t.Errorf("spawned=%d done=%d, want exactly one each", spawnedCount, doneCount)
	}
	if _, isDone := stream[len(stream)-1].(*protocol.ProcDone); !isDone {
		t.Errorf("last payload is %#v, want done", stream[len(stream)-1])
	}
	if !strings.HasPrefix(output.String(), "hello") {
		t.Errorf("stdout: %q", output.String())
	}

	testutil.RequireClosed(t, process.Done(), 5*time.Second, "process record removal")
	if entries := manager.List(1); len(entries) != 0 {
		t.Errorf("process still listed after exit: %+v", entries)
	}
}

func TestStdinPreservesOrder(t *testing.T) {
	manager := testManager(t)
	emissions := make(chan protocol.ResponseArgs, 64)

	// head -c 6 reads exactly six bytes, writes them, and exits.
	process, err := manager.Spawn(1, protocol.ProcSpawn{Cmd: "head", Args: []string{"-c", "6"}},
		func(payload protocol.ResponseArgs) { emissions <- payload })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	for _, chunk := range []string{"ab", "cd", "ef"} {
		if err := manager.WriteStdin(process.ID(), []byte(chunk)); err != nil {
			t.Fatalf("WriteStdin %q: %v", chunk, err)
		}
	}

	stream := collectStream(t, emissions)
	var output bytes.Buffer
	for _, payload := range stream {
		if chunk, ok := payload.(*protocol.ProcStdout); ok {
			output.Write(chunk.Data)
		}
	}
	if output.String() != "abcdef" {
		t.Errorf("stdin order lost: %q", output.String())
	}
}

func TestKillEmitsSignalledDone(t *testing.T) {
	manager := testManager(t)
	emissions := make(chan protocol.ResponseArgs, 64)

	process, err := manager.Spawn(1, protocol.ProcSpawn{Cmd: "sleep", Args: []string{"30"}},
		func(payload protocol.ResponseArgs) { emissions <- payload })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// The spawned event arrives first.
	first := testutil.RequireReceive(t, emissions, 5*time.Second, "spawned event")
	if _, ok := first.(*protocol.ProcSpawned); !ok {
		t.Fatalf("first payload: %#v", first)
	}

	if err := manager.Kill(process.ID()); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	for {
		payload := testutil.RequireReceive(t, emissions, 10*time.Second, "waiting for done")
		done, ok := payload.(*protocol.ProcDone)
		if !ok {
			continue
		}
		if done.Success {
			t.Error("killed process reported success")
		}
		if done.Signal != "SIGKILL" {
			t.Errorf("signal: %q", done.Signal)
		}
		if done.Code != nil {
			t.Errorf("killed process has exit code: %d", *done.Code)
		}
		return
	}
}

func TestKillUnknownProcess(t *testing.T) {
	manager := testManager(t)
	err := manager.Kill(42)
	wireError, ok := err.(*protocol.Error)
	if !ok || wireError.Kind != protocol.KindNotFound {
		t.Errorf("Kill unknown: %v", err)
	}
}

func TestResizeRequiresPty(t *testing.T) {
	manager := testManager(t)
	emissions := make(chan protocol.ResponseArgs, 64)

	process, err := manager.Spawn(1, protocol.ProcSpawn{Cmd: "sleep", Args: []string{"30"}},
		func(payload protocol.ResponseArgs) { emissions <- payload })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer manager.Kill(process.ID())

	err = manager.Resize(process.ID(), 50, 132)
	wireError, ok := err.(*protocol.Error)
	if !ok || wireError.Kind != protocol.KindUnsupported {
		t.Errorf("Resize on pipe-backed process: %v", err)
	}
}

func TestPtyReportsRequestedSize(t *testing.T) {
	manager := testManager(t)
	emissions := make(chan protocol.ResponseArgs, 64)

	// stty reads the terminal attached to stdin; under a PTY of
	// 24x80 it prints "24 80".
	_, err := manager.Spawn(1, protocol.ProcSpawn{
		Cmd:  "stty",
		Args: []string{"size"},
		Pty:  &protocol.PtySize{Rows: 24, Cols: 80},
	}, func(payload protocol.ResponseArgs) { emissions <- payload })
	if err != nil {
		t.Fatalf("Spawn with pty: %v", err)
	}

	stream := collectStream(t, emissions)
	var output bytes.Buffer
	for _, payload := range stream {
		if chunk, ok := payload.(*protocol.ProcStdout); ok {
			output.Write(chunk.Data)
		}
	}
	if !strings.Contains(output.String(), "24 80") {
		t.Errorf("pty size: %q", output.String())
	}
}

func TestListAndPersistVisibility(t *testing.T) {
	manager := testManager(t)
	discard := func(protocol.ResponseArgs) {}

	persistent, err := manager.Spawn(1, protocol.ProcSpawn{
		Cmd: "sleep", Args: []string{"30"}, Persist: true,
	}, discard)
	if err != nil {
		t.Fatalf("Spawn persistent: %v", err)
	}
	ephemeral, err := manager.Spawn(1, protocol.ProcSpawn{
		Cmd: "sleep", Args: []string{"30"},
	}, discard)
	if err != nil {
		t.Fatalf("Spawn ephemeral: %v", err)
	}

	// The spawning connection sees both.
	if entries := manager.List(1); len(entries) != 2 {
		t.Errorf("owner list: %+v", entries)
	}
	// Another connection sees only the persistent one.
	entries := manager.List(2)
	if len(entries) != 1 || entries[0].ID != persistent.ID() || !entries[0].Persist {
		t.Errorf("foreign list: %+v", entries)
	}

	// Connection close kills the ephemeral process, keeps the
	// persistent one.
	manager.ReleaseConnection(1)
	testutil.RequireClosed(t, ephemeral.Done(), 10*time.Second, "ephemeral killed on release")

	select {
	case <-persistent.Done():
		t.Fatal("persistent process died on connection release")
	case <-time.After(100 * time.Millisecond):
	}

	// Still killable from another connection by id.
	if err := manager.Kill(persistent.ID()); err != nil {
		t.Fatalf("Kill persistent from other connection: %v", err)
	}
	testutil.RequireClosed(t, persistent.Done(), 10*time.Second, "persistent killed explicitly")
}
