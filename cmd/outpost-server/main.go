// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Outpost-server is the remote side of Outpost: it listens on a TCP or
// unix socket for framed connections and executes file, process, and
// watch operations on this host on behalf of connected clients.
//
// On startup:
//  1. Loads configuration (--config or OUTPOST_CONFIG; defaults apply
//     when neither is set).
//  2. Loads the pre-shared connection key, when one is configured —
//     without a key the transport runs in plaintext, which is only
//     sane on unix sockets and loopback.
//  3. Binds the listener and serves until SIGINT/SIGTERM.
//
// Shutdown stops accepting connections, drains in-flight handlers,
// kills remaining processes, and releases watches.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/outpost/frame"
	"github.com/bureau-foundation/outpost/lib/config"
	"github.com/bureau-foundation/outpost/lib/credential"
	"github.com/bureau-foundation/outpost/lib/process"
	"github.com/bureau-foundation/outpost/lib/secret"
	"github.com/bureau-foundation/outpost/server"
	"github.com/bureau-foundation/outpost/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath     string
		generateKey    string
		passphraseFile string
	)
	pflag.StringVar(&configPath, "config", "", "path to the server config file (overrides OUTPOST_CONFIG)")
	pflag.StringVar(&generateKey, "generate-key", "", "write a fresh connection key to this path and exit")
	pflag.StringVar(&passphraseFile, "key-passphrase-file", "", "file holding the passphrase for an age-sealed key file, or - for stdin")
	pflag.Parse()

	// The passphrase comes from a file or stdin, never from argv
	// where it would be visible in the process listing.
	passphrase := os.Getenv("OUTPOST_KEY_PASSPHRASE")
	if passphraseFile != "" {
		buffer, err := secret.ReadFromPath(passphraseFile)
		if err != nil {
			return fmt.Errorf("reading key passphrase: %w", err)
		}
		defer buffer.Close()
		passphrase = string(buffer.Bytes())
	}

	if generateKey != "" {
		key, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		defer key.Close()
		if err := credential.WriteKeyFile(generateKey, key, passphrase); err != nil {
			return err
		}
		fmt.Printf("wrote connection key to %s\n", generateKey)
		return nil
	}

	configuration, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if passphrase == "" {
		passphrase = configuration.Listen.KeyPassphrase
	}

	logger := newLogger()

	var key *secret.Buffer
	factory := transport.PlainFactory
	if configuration.Listen.KeyFile != "" {
		key, err = credential.LoadKeyFile(configuration.Listen.KeyFile, passphrase)
		if err != nil {
			return err
		}
		defer key.Close()

		logger.Info("loaded connection key",
			"file", configuration.Listen.KeyFile,
			"fingerprint", credential.KeyFingerprint(key))

		factory = func() (frame.Codec, error) {
			codec, err := frame.NewEncryption(key)
			if err != nil {
				return nil, err
			}
			return withCompression(codec, configuration.Listen.Compression), nil
		}
	} else {
		logger.Warn("no key file configured; transport runs in plaintext")
		factory = func() (frame.Codec, error) {
			return withCompression(frame.Plain(), configuration.Listen.Compression), nil
		}
	}

	listener, err := transport.NewListener(
		configuration.Listen.Network, configuration.Listen.Address, factory, logger)
	if err != nil {
		return err
	}

	outpost := server.New(server.Options{
		Logger:           logger,
		ProcessChunkSize: configuration.Process.ChunkSize,
		DebounceWindow:   configuration.Watch.DebounceWindow,
		ForcePolling:     configuration.Watch.ForcePolling,
		PollInterval:     configuration.Watch.PollInterval,
	})
	defer outpost.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return listener.Serve(ctx, outpost.HandleConn)
}

// withCompression stacks the configured compression codec under the
// transport codec. Compression runs first on encode so ciphertext is
// never fed to the compressor.
func withCompression(codec frame.Codec, compression string) frame.Codec {
	switch compression {
	case "zstd":
		return frame.Chain(frame.Zstd(), codec)
	case "lz4":
		return frame.Chain(frame.LZ4(), codec)
	default:
		return codec
	}
}
