package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
	"github.com/zboralski/reentry/internal/engine/sim"
	"github.com/zboralski/reentry/internal/engine/unicorn"
	glog "github.com/zboralski/reentry/internal/log"
	"github.com/zboralski/reentry/internal/scenario"
	"github.com/zboralski/reentry/internal/trace"
	"github.com/zboralski/reentry/internal/ui/colorize"
)

var (
	verbose  bool
	quiet    bool
	noDisasm bool
	noColor  bool
	maxDepth int
	timeout  time.Duration
	count    uint64
	backend  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reentry [scenario.yaml]",
		Short: "Run nested emulation scenarios with register checkpoints",
		Long: `Reentry runs code on an emulated CPU and, when execution reaches a trigger
address, checkpoints the registers, runs a second code range on the same
session, restores the checkpoint and lets the first run continue.

Without an argument the built-in ARM Thumb scenario runs: the same four
instructions are placed at base+4 and base+16, the outer run covers the
first copy and the nested run the second, fired from base+6.

Only registers are checkpointed. Memory the nested run writes stays written.

Examples:
  reentry                      # Built-in scenario on unicorn
  reentry --engine sim         # Same scenario on the scripted engine
  reentry my.yaml -q           # Summary only
  reentry scenario > my.yaml   # Start a scenario from the built-in one
  reentry regs arm thumb       # Register names for a target`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		RunE:                  runScenario,
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (summary only)")
	rootCmd.Flags().BoolVar(&noDisasm, "no-disasm", false, "do not disassemble traced instructions")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "bound nested recursion (0 = unbounded)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "outer run timeout (0 = none)")
	rootCmd.Flags().Uint64Var(&count, "count", 0, "outer run instruction limit (0 = none; the unicorn engine then refuses nested runs)")
	rootCmd.Flags().StringVar(&backend, "engine", "unicorn", "emulation engine: unicorn or sim")

	scenarioCmd := &cobra.Command{
		Use:   "scenario",
		Short: "Print the built-in scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(scenario.DefaultYAML())
			return err
		},
	}
	regsCmd := &cobra.Command{
		Use:   "regs <arch> [mode]",
		Short: "List register names",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  showRegs,
	}
	rootCmd.AddCommand(scenarioCmd, regsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter(w io.Writer) *outputWriter {
	o := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(w, 64*1024),
	}
	go o.run()
	return o
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

// Write queues a line. It blocks when the queue is full so no trace line
// is lost.
func (w *outputWriter) Write(line string) {
	w.ch <- line
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func opener(name string, sc *scenario.Scenario) (engine.Opener, error) {
	switch strings.ToLower(name) {
	case "unicorn", "uc":
		return unicorn.Open, nil
	case "sim":
		prog, err := scenario.Script(sc)
		if err != nil {
			return nil, err
		}
		return sim.Opener(prog), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

func runScenario(cmd *cobra.Command, args []string) error {
	glog.Init(verbose)
	if noColor {
		colorize.SetEnabled(false)
	}

	sc := scenario.Default()
	name := "built-in"
	if len(args) == 1 {
		var err error
		if sc, err = scenario.Load(args[0]); err != nil {
			return err
		}
		name = args[0]
	}
	if timeout > 0 {
		sc.Outer.Timeout = timeout
	}
	if count > 0 {
		sc.Outer.Count = count
	}

	open, err := opener(backend, sc)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	a, err := arch.Parse(sc.Arch, sc.Mode)
	if err != nil {
		return err
	}

	opts := []scenario.Option{
		scenario.WithLogger(glog.Get()),
		scenario.WithMaxDepth(maxDepth),
		scenario.WithDisasm(!noDisasm),
	}

	var out *outputWriter
	if !quiet {
		out = newOutputWriter(cmd.OutOrStdout())
		printHeader(out, name, sc, a)
		opts = append(opts, scenario.WithSink(&trace.Printer{Line: out.Write, States: verbose, Bits: a.Bits}))
	}

	res, err := scenario.Run(ctx, open, sc, opts...)
	if out != nil {
		out.Close()
	}
	if res != nil {
		printSummary(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return err
	}
	if res.OuterErr != nil {
		return fmt.Errorf("outer run: %w", res.OuterErr)
	}
	if res.Cancelled {
		return context.Canceled
	}
	return nil
}

func printHeader(w *outputWriter, name string, sc *scenario.Scenario, a *arch.Arch) {
	w.Write(colorize.Header(fmt.Sprintf("reentry  %s  %s  engine=%s", name, a, backend)))
	w.Write(colorize.Detail(fmt.Sprintf("region %s..%s  sp=%s  %d nested target(s)",
		glog.Hex(uint64(sc.Base)), glog.Hex(uint64(sc.Base)+uint64(sc.Size)), glog.Hex(sc.StackTop()), len(sc.Nested))))
	w.Write("")
}

func printSummary(w io.Writer, res *scenario.Result) {
	fmt.Fprintln(w)
	if res.OuterErr != nil {
		fmt.Fprintf(w, "%s %v\n", colorize.Error("outer run failed:"), res.OuterErr)
	}
	if res.Cancelled {
		fmt.Fprintln(w, colorize.Error("cancelled"))
	}
	fmt.Fprintf(w, "SP initial %s  checkpoint %s  resumed %s  final %s\n",
		glog.Hex(res.InitialSP), glog.Hex(res.CheckpointSP), glog.Hex(res.ResumedSP), glog.Hex(res.FinalSP))
	fmt.Fprintf(w, "%s %d blocks, %d instructions, nested %d/%d completed",
		colorize.Detail("stats"), res.Blocks, res.Insns, res.Nested.Completed, res.Nested.Triggered)
	if res.Nested.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", res.Nested.Failed)
	}
	if res.Nested.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", res.Nested.Skipped)
	}
	fmt.Fprintf(w, ", snapshots %d/%d released\n", res.Snapshots.Released, res.Snapshots.Allocated)
}

func showRegs(cmd *cobra.Command, args []string) error {
	mode := ""
	if len(args) == 2 {
		mode = args[1]
	}
	a, err := arch.Parse(args[0], mode)
	if err != nil {
		if errors.Is(err, arch.ErrUnsupported) {
			return fmt.Errorf("%w (arm, arm64, x86, x86_64)", err)
		}
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  sp=%s pc=%s\n", colorize.Header(a.String()), a.RegName(a.SP), a.RegName(a.PC))
	fmt.Fprintln(w, strings.Join(a.Regs, " "))
	return nil
}
