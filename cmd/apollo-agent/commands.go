package main

import (
	"apollocfg/internal/api"
	"apollocfg/internal/apollo"
	"apollocfg/internal/types"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every loaded namespace as JSON",
	RunE:  runDump,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print change events until interrupted",
	RunE:  runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the loaded namespaces over HTTP",
	RunE:  runServe,
}

func init() {
	getCmd.Flags().String("from", "", "namespace to read (default: the first namespace)")
	getCmd.Flags().String("default", "", "value printed when the key is absent")
	serveCmd.Flags().IntP("port", "p", 8080, "listen port")
}

func newClient(cmd *cobra.Command) (*apollo.Client, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	return apollo.New(cmd.Context(), opts)
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	ns, _ := cmd.Flags().GetString("from")
	if ns == "" {
		ns = client.Namespaces()[0]
	}
	m := client.Mapping(ns)
	if m == nil {
		return types.Err(types.ErrNotFound, nil, "namespace %q is not configured", ns)
	}
	v, ok := m.Lookup(cmd.Context(), args[0])
	if !ok {
		if !cmd.Flags().Changed("default") {
			return types.Err(types.ErrNotFound, nil, "key %q in namespace %q", args[0], ns)
		}
		v, _ = cmd.Flags().GetString("default")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
	return err
}

type dumpEntry struct {
	ReleaseKey     string            `json:"releaseKey"`
	Source         string            `json:"source"`
	Configurations map[string]string `json:"configurations"`
}

func runDump(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	out := make(map[string]dumpEntry, len(client.Namespaces()))
	for _, ns := range client.Namespaces() {
		m := client.Mapping(ns)
		snap := m.Snapshot(cmd.Context())
		out[ns] = dumpEntry{
			ReleaseKey:     snap.ReleaseKey(),
			Source:         m.Source().String(),
			Configurations: snap.Values(),
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	client.OnChange(func(ctx context.Context, event types.ChangeEvent) {
		if err := enc.Encode(event); err != nil {
			log.WithError(err).Error("failed to print change event")
		}
	})
	client.Start(ctx)
	<-ctx.Done()
	client.Stop()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	client.Start(ctx)
	defer client.Stop()

	port, _ := cmd.Flags().GetInt("port")
	stopServer, done := api.RunServerInterruptible(port, client)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		close(stopServer)
		return <-done
	}
}
