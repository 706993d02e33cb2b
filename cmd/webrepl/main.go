// Command webrepl is a client for the MicroPython WebREPL: it uploads
// and downloads files over the device's WebSocket console and provides
// an interactive terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/schinckel/webrepl-client/webrepl"
)

var (
	deviceURL string
	password  string
	timeout   time.Duration
	verbose   bool
)

func main() {
	root := &cobra.Command{
		Use:           "webrepl",
		Short:         "MicroPython WebREPL client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&deviceURL, "url", "u", "ws://192.168.4.1:8266/", "device WebSocket URL")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "WebREPL password")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "per-operation timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose protocol logging")

	root.AddCommand(putCmd(), getCmd(), versionCmd(), replCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect dials the device and waits for the password handshake.
func connect(ctx context.Context, callbacks *webrepl.Callbacks) (*webrepl.Client, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	client, err := webrepl.Dial(ctx, deviceURL,
		webrepl.WithPassword(password),
		webrepl.WithCallbacks(callbacks),
		webrepl.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.WaitReady(readyCtx); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// progressCallbacks prints transfer progress to stderr in verbose mode.
func progressCallbacks() *webrepl.Callbacks {
	if !verbose {
		return nil
	}
	return &webrepl.Callbacks{
		OnProgress: func(filename string, transferred, total int64, rate float64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%.0f bytes/s)",
					filename, float64(transferred)/float64(total)*100, rate)
			} else {
				fmt.Fprintf(os.Stderr, "\r%s: %d bytes (%.0f bytes/s)", filename, transferred, rate)
			}
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local> [remote]",
		Short: "Upload a file to the device",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := args[0]
			remote := path.Base(filepath.ToSlash(local))
			if len(args) == 2 {
				remote = args[1]
			}

			data, err := os.ReadFile(local)
			if err != nil {
				return err
			}

			client, err := connect(cmd.Context(), progressCallbacks())
			if err != nil {
				return err
			}
			defer client.Close()

			opCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			n, err := client.Put(opCtx, remote, data)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Fprintln(os.Stderr)
			}
			fmt.Printf("Sent %s -> %s (%d bytes)\n", local, remote, n)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a file from the device",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := args[0]
			local := path.Base(remote)
			if len(args) == 2 {
				local = args[1]
			}

			client, err := connect(cmd.Context(), progressCallbacks())
			if err != nil {
				return err
			}
			defer client.Close()

			opCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			data, err := client.Get(opCtx, remote)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Fprintln(os.Stderr)
			}

			if err := os.WriteFile(local, data, 0644); err != nil {
				return err
			}
			fmt.Printf("Received %s -> %s (%d bytes)\n", remote, local, len(data))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Query the device firmware version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer client.Close()

			opCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			v, err := client.QueryVersion(opCtx)
			if err != nil {
				return err
			}
			fmt.Printf("WebREPL version %s\n", v)
			return nil
		},
	}
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Open an interactive console on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			callbacks := &webrepl.Callbacks{
				OnConsole: func(data []byte) {
					os.Stdout.Write(data)
				},
			}

			client, err := connect(cmd.Context(), callbacks)
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Fprintf(os.Stderr, "Connected to %s (Ctrl-] to quit)\r\n", deviceURL)

			terminal := webrepl.NewTerminal(client.Session, os.Stdin)
			if err := terminal.Run(cmd.Context()); err != nil && err != context.Canceled {
				return err
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}
}
