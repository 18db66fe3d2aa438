// Command ridge-shim is a standalone entry point for the step shim
// (internal/stepshim): a combined PMI/PMGR rendezvous and I/O fan-out
// listener for one job step. In normal operation the node agent starts a
// shim in-process on the step's lead node (internal/nodeagent/launch.go);
// this binary exists for operators running or testing a shim outside that
// path.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/stepshim"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ridge-shim",
	Short:   "Ridge step shim: PMI/PMGR rendezvous and I/O fan-out for one job step",
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "listen for PMI/PMGR/IO connections for one step",
	RunE:  runShim,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridge-shim %s (%s)\n", Version, Commit))

	flags := runCmd.Flags()
	flags.String("addr", "0.0.0.0:0", "listen address for the combined PMI/PMGR/IO socket")
	flags.Uint64("job-id", 0, "job id this step belongs to (required)")
	flags.Uint32("step-id", 0, "step id (required)")
	flags.Int("size", 0, "total task count for the step (required)")
	flags.String("io-mode", "all", "io routing mode: all, none, task, pattern")
	flags.Int("io-task", 0, "task id to route when --io-mode=task")
	flags.String("io-pattern", "", "filename pattern when --io-mode=pattern")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON")
	_ = runCmd.MarkFlagRequired("job-id")
	_ = runCmd.MarkFlagRequired("step-id")
	_ = runCmd.MarkFlagRequired("size")

	rootCmd.AddCommand(runCmd)
}

func runShim(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	jobID, _ := flags.GetUint64("job-id")
	stepID, _ := flags.GetUint32("step-id")
	size, _ := flags.GetInt("size")
	ioMode, _ := flags.GetString("io-mode")
	ioTask, _ := flags.GetInt("io-task")
	ioPattern, _ := flags.GetString("io-pattern")
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	routing := stepshim.Routing{
		Mode:    parseRouteMode(ioMode),
		TaskID:  ioTask,
		Pattern: ioPattern,
		JobID:   jobID,
		StepID:  stepID,
	}

	shim := stepshim.NewShim(jobID, stepID, size, routing)
	listenAddr, err := shim.Listen(addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.WithStepID(jobID, stepID).Info().Str("addr", listenAddr).Msg("step shim listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shim.Finalize()
	return nil
}

func parseRouteMode(mode string) stepshim.RouteMode {
	switch mode {
	case "none":
		return stepshim.RouteNone
	case "task":
		return stepshim.RouteTask
	case "pattern":
		return stepshim.RoutePattern
	default:
		return stepshim.RouteAll
	}
}
