package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casilisto/sync/internal/client"
	"github.com/casilisto/sync/internal/models"
)

var (
	serverURL string
	dataDir   string
)

func main() {
	root := &cobra.Command{
		Use:   "casictl",
		Short: "Shopping list sync client",
		Long:  "casictl links this machine to a shared shopping list and keeps a local copy in sync.",
	}

	defaultDir := ".casilisto"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".casilisto")
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "sync server base URL")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDir, "directory for local state")

	root.AddCommand(
		createCmd(),
		linkCmd(),
		statusCmd(),
		devicesCmd(),
		unlinkCmd(),
		watchCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type env struct {
	identity  *client.Identity
	transport *client.Transport
	store     *client.Store
	source    *fileSource
}

func newEnv() (*env, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	identity, err := client.EnsureIdentity(filepath.Join(dataDir, "identity.json"))
	if err != nil {
		return nil, err
	}

	store, err := client.OpenStore(filepath.Join(dataDir, "client.db"))
	if err != nil {
		return nil, err
	}

	return &env{
		identity:  identity,
		transport: client.NewTransport(serverURL, &http.Client{Timeout: 10 * time.Second}),
		store:     store,
		source:    newFileSource(filepath.Join(dataDir, "list.json")),
	}, nil
}

func (e *env) orchestrator(cfg client.Config, notify func(client.Notification)) (*client.Orchestrator, error) {
	return client.NewOrchestrator(cfg, e.transport, e.store, e.identity, e.source, notify)
}

func (e *env) close() {
	e.store.Close()
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new shared list and link this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(client.DefaultConfig(), nil)
			if err != nil {
				return err
			}
			if err := orch.Start(cmd.Context()); err != nil {
				return err
			}
			defer orch.Close()

			code, err := orch.CreateAccount(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Share code:", code)
			fmt.Println("Use this code on other devices with: casictl link", code)
			return nil
		},
	}
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link CODE",
		Short: "Link this machine to an existing shared list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(client.DefaultConfig(), nil)
			if err != nil {
				return err
			}
			if err := orch.Start(cmd.Context()); err != nil {
				return err
			}
			defer orch.Close()

			if err := orch.Link(cmd.Context(), args[0]); err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("code %q not found", args[0])
				}
				if client.IsDeviceLimit(err) {
					return fmt.Errorf("this list already has the maximum number of devices")
				}
				return err
			}

			fmt.Println("Linked to", models.NormalizeCode(args[0]))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show link state and local list contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			info, err := e.store.EnsureSyncInfo(cmd.Context(), e.identity)
			if err != nil {
				return err
			}

			if info.Code == "" {
				fmt.Println("Not linked. Run 'casictl create' or 'casictl link CODE'.")
			} else {
				fmt.Println("Linked to:", info.Code)
				fmt.Println("Device:   ", info.DeviceID)
				if info.LastSyncedAt > 0 {
					fmt.Println("Last sync:", time.UnixMilli(info.LastSyncedAt).Format(time.RFC1123))
				}
			}

			queued, err := e.store.QueueLen(cmd.Context())
			if err != nil {
				return err
			}
			if queued > 0 {
				fmt.Printf("Pending offline changes: %d\n", queued)
			}

			data, err := e.source.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if len(data.Items) == 0 {
				fmt.Println("List is empty.")
				return nil
			}

			fmt.Println()
			for _, item := range data.Items {
				mark := " "
				if item.Completed {
					mark = "x"
				}
				fmt.Printf("  [%s] %s\n", mark, item.Text)
			}
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices linked to the shared list",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			info, err := e.store.EnsureSyncInfo(cmd.Context(), e.identity)
			if err != nil {
				return err
			}
			if info.Code == "" {
				return fmt.Errorf("not linked to a list")
			}

			devices, err := e.transport.Devices(cmd.Context(), info.Code)
			if err != nil {
				return err
			}

			for _, d := range devices {
				marker := ""
				if d.ID == e.identity.DeviceID {
					marker = " (this device)"
				}
				lastSeen := time.UnixMilli(d.LastSeen).Format("2006-01-02 15:04")
				fmt.Printf("%-36s  %-20s  last seen %s%s\n", d.ID, d.Name, lastSeen, marker)
			}
			return nil
		},
	}
}

func unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink [DEVICE_ID]",
		Short: "Unlink this machine, or remove another device by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			info, err := e.store.EnsureSyncInfo(cmd.Context(), e.identity)
			if err != nil {
				return err
			}
			if info.Code == "" {
				return fmt.Errorf("not linked to a list")
			}

			if len(args) == 1 && args[0] != e.identity.DeviceID {
				if err := e.transport.Unlink(cmd.Context(), info.Code, args[0]); err != nil {
					if client.IsNotFound(err) {
						return fmt.Errorf("device %q not found", args[0])
					}
					return err
				}
				fmt.Println("Removed device", args[0])
				return nil
			}

			orch, err := e.orchestrator(client.DefaultConfig(), nil)
			if err != nil {
				return err
			}
			if err := orch.Start(cmd.Context()); err != nil {
				return err
			}
			defer orch.Close()

			if err := orch.Disconnect(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Println("Unlinked this device.")
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the local list in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(client.DefaultConfig(), func(n client.Notification) {
				switch n.Kind {
				case client.NotifyStateChanged:
					fmt.Println("state:", n.State)
				case client.NotifyMerged:
					fmt.Printf("merged: list now has %d items\n", len(n.Data.Items))
				case client.NotifyQueueFlushed:
					fmt.Printf("replayed %d offline changes\n", n.Flushed)
				case client.NotifyQueueDropped:
					fmt.Fprintln(os.Stderr, "dropped a rejected offline change:", n.Err)
				case client.NotifyError:
					fmt.Fprintln(os.Stderr, "sync error:", n.Err)
				}
			})
			if err != nil {
				return err
			}
			if err := orch.Start(cmd.Context()); err != nil {
				return err
			}
			defer orch.Close()

			if orch.Code() == "" {
				return fmt.Errorf("not linked to a list")
			}

			fmt.Println("Watching", e.source.Path(), "for changes. Ctrl-C to stop.")
			e.source.Watch(cmd.Context(), time.Second, orch.NotifyMutation)

			<-cmd.Context().Done()
			return nil
		},
	}
}
