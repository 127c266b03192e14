package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"studioprov/internal/config"
	"studioprov/internal/envelope"
	"studioprov/internal/reconciler"
	"studioprov/pkg/logging"
)

// reconcileQuiet disables the progress spinner, for scripting.
var reconcileQuiet bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [event-file]",
	Short: "Dispatch a single lifecycle event",
	Long: `Reads one envelope JSON event from the given file (or stdin when
the argument is omitted or "-"), dispatches it to its reconciler, and
prints the resulting outputs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
	// The failure payload is already printed with its physical id; a second
	// cobra error line would just repeat it.
	SilenceErrors: true,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	raw, err := readEventSource(cmd, args)
	if err != nil {
		return err
	}
	event, err := envelope.Parse(raw)
	if err != nil {
		return err
	}
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if !reconcileQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Reconciling %s %s...", event.RequestType, event.ResourceType)
		s.Start()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	response, err := registry.Dispatch(ctx, event)
	if s != nil {
		s.Stop()
	}

	out := cmd.OutOrStdout()
	if err != nil {
		failure := reconciler.Failed(event, err)
		fmt.Fprintf(out, "Reconciliation failed: %s\n", failure.Error)
		if failure.PhysicalResourceID != "" {
			fmt.Fprintf(out, "Physical resource id: %s\n", failure.PhysicalResourceID)
		}
		return err
	}

	printResponse(out, response)
	return nil
}

// readEventSource returns the raw event bytes from the file argument or
// stdin.
func readEventSource(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// printResponse renders the response outputs as a key/value table.
func printResponse(out io.Writer, response *envelope.Response) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"KEY", "VALUE"})
	t.AppendRow(table.Row{"PhysicalResourceId", response.PhysicalResourceID})

	keys := make([]string, 0, len(response.Data))
	for key := range response.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t.AppendRow(table.Row{key, response.Data[key]})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVarP(&reconcileQuiet, "quiet", "q", false, "Disable the progress spinner")
}
