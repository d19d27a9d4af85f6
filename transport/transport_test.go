// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/outpost/frame"
	"github.com/bureau-foundation/outpost/lib/secret"
	"github.com/bureau-foundation/outpost/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPipeRoundtrip(t *testing.T) {
	client, server := Pipe(frame.Plain(), frame.Plain())
	defer client.Close()
	defer server.Close()

	received := make(chan []byte, 1)
	go func() {
		body, err := server.ReadFrame()
		if err != nil {
			t.Errorf("server ReadFrame: %v", err)
			close(received)
			return
		}
		received <- body
	}()

	if err := client.WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}
	body := testutil.RequireReceive(t, received, 5*time.Second, "waiting for frame")
	if string(body) != "hello" {
		t.Errorf("received %q", body)
	}
}

func TestPipeEncrypted(t *testing.T) {
	key := make([]byte, frame.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatalf("generating key: %v", err)
	}

	newCodec := func() frame.Codec {
		copyBytes := append([]byte(nil), key...)
		buffer, err := secret.NewFromBytes(copyBytes)
		if err != nil {
			t.Fatalf("secret.NewFromBytes: %v", err)
		}
		t.Cleanup(func() { buffer.Close() })
		codec, err := frame.NewEncryption(buffer)
		if err != nil {
			t.Fatalf("NewEncryption: %v", err)
		}
		return codec
	}

	client, server := Pipe(newCodec(), newCodec())
	defer client.Close()
	defer server.Close()

	payload := []byte("confidential payload")
	received := make(chan []byte, 1)
	go func() {
		body, err := server.ReadFrame()
		if err != nil {
			t.Errorf("server ReadFrame: %v", err)
			close(received)
			return
		}
		received <- body
	}()

	if err := client.WriteFrame(payload); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}
	body := testutil.RequireReceive(t, received, 5*time.Second, "waiting for frame")
	if !bytes.Equal(body, payload) {
		t.Errorf("received %q", body)
	}
}

func TestSplitHalvesShareTeardown(t *testing.T) {
	client, server := Pipe(frame.Plain(), frame.Plain())
	defer client.Close()
	defer server.Close()

	readHalf, writeHalf := client.Split()

	received := make(chan []byte, 1)
	go func() {
		body, err := server.ReadFrame()
		if err != nil {
			close(received)
			return
		}
		received <- body
		server.WriteFrame([]byte("reply"))
	}()

	if err := writeHalf.WriteFrame([]byte("via half")); err != nil {
		t.Fatalf("WriteHalf.WriteFrame: %v", err)
	}
	body := testutil.RequireReceive(t, received, 5*time.Second, "server receive")
	if string(body) != "via half" {
		t.Errorf("received %q", body)
	}

	reply, err := readHalf.ReadFrame()
	if err != nil {
		t.Fatalf("ReadHalf.ReadFrame: %v", err)
	}
	if string(reply) != "reply" {
		t.Errorf("reply %q", reply)
	}

	// Closing the conn kills both halves.
	client.Close()
	if err := writeHalf.WriteFrame([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("write half after close: %v", err)
	}
	if _, err := readHalf.ReadFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("read half after close: %v", err)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	client, server := Pipe(frame.Plain(), frame.Plain())
	defer server.Close()

	client.Close()
	err := client.WriteFrame([]byte("late"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("WriteFrame after Close: got %v, want ErrClosed", err)
	}
	testutil.RequireClosed(t, client.Done(), time.Second, "Done after Close")
}

func TestReadAfterPeerCloseIsEOF(t *testing.T) {
	client, server := Pipe(frame.Plain(), frame.Plain())
	defer client.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := client.ReadFrame()
		errs <- err
	}()
	server.Close()

	err := testutil.RequireReceive(t, errs, 5*time.Second, "waiting for read error")
	if err != io.EOF && !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("read after peer close: %v", err)
	}
}

func TestDecodeFailureTearsDownConnection(t *testing.T) {
	// The server side expects encrypted frames; the client sends
	// plaintext garbage. The decode failure must tear the server
	// conn down so no later frame is delivered.
	key := make([]byte, frame.KeySize)
	buffer, err := secret.NewFromBytes(append([]byte(nil), key...))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer buffer.Close()
	encryption, err := frame.NewEncryption(buffer)
	if err != nil {
		t.Fatalf("NewEncryption: %v", err)
	}

	client, server := Pipe(frame.Plain(), encryption)
	defer client.Close()
	defer server.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := server.ReadFrame()
		errs <- err
	}()

	if err := client.WriteFrame([]byte("not an encrypted frame")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	readErr := testutil.RequireReceive(t, errs, 5*time.Second, "waiting for decode failure")
	if readErr == nil {
		t.Fatal("garbage frame decoded")
	}
	testutil.RequireClosed(t, server.Done(), time.Second, "teardown after decode failure")

	if _, err := server.ReadFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFrame after teardown: got %v, want ErrClosed", err)
	}
}

func TestListenerTCP(t *testing.T) {
	listener, err := NewListener("tcp", "127.0.0.1:0", PlainFactory, testLogger())
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served sync.WaitGroup
	served.Add(1)
	received := make(chan []byte, 1)
	go func() {
		defer served.Done()
		listener.Serve(ctx, func(_ context.Context, conn *Conn) {
			defer conn.Close()
			body, err := conn.ReadFrame()
			if err != nil {
				return
			}
			received <- body
			conn.WriteFrame(append([]byte("echo:"), body...))
		})
	}()

	conn, err := Dial("tcp", listener.Address(), frame.Plain())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteFrame([]byte("ping")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	body := testutil.RequireReceive(t, received, 5*time.Second, "server receive")
	if string(body) != "ping" {
		t.Errorf("server received %q", body)
	}

	reply, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("reply %q", reply)
	}

	cancel()
	served.Wait()
}

func TestListenerUnixRemovesStaleSocket(t *testing.T) {
	directory := testutil.SocketDir(t)
	socketPath := filepath.Join(directory, "outpost.sock")

	// First listener binds and is shut down without unlinking its
	// socket file, leaving a stale socket behind.
	first, err := NewListener("unix", socketPath, PlainFactory, testLogger())
	if err != nil {
		t.Fatalf("first NewListener: %v", err)
	}
	first.listener.(*net.UnixListener).SetUnlinkOnClose(false)
	first.Close()

	second, err := NewListener("unix", socketPath, PlainFactory, testLogger())
	if err != nil {
		t.Fatalf("second NewListener over stale socket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		second.Serve(ctx, func(_ context.Context, conn *Conn) {
			conn.Close()
		})
	}()

	conn, err := Dial("unix", socketPath, frame.Plain())
	if err != nil {
		t.Fatalf("Dial unix: %v", err)
	}
	conn.Close()

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "listener shutdown")
}
