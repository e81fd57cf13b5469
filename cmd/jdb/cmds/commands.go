// Package cmds implements the jdb command line interface.
package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jgallag88/libjdb/pkg/config"
	"github.com/jgallag88/libjdb/pkg/hprof"
	"github.com/jgallag88/libjdb/pkg/jdwp"
	"github.com/jgallag88/libjdb/pkg/jvm"
	"github.com/jgallag88/libjdb/pkg/logflags"
	"github.com/jgallag88/libjdb/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should
	// produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// noSuspend skips suspending the debuggee while collecting stack
	// traces.
	noSuspend bool
	// maxFrames caps the number of frames printed per thread.
	maxFrames int
	// noColor disables colorized output.
	noColor bool

	conf *config.Config
)

const jdbCommandLongDesc = `jdb is a debugger client for the Java virtual machine.

It attaches to the JDWP port of a running JVM, or reads an hprof heap
dump, and inspects the threads and stack traces found there.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "jdb",
		Short: "jdb is a debugger client for the JVM.",
		Long:  jdbCommandLongDesc,
	}
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (jdwp, hprof).")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Write debug logs to the specified file or file descriptor.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jdb\n%s\n%s\n", version.JdbVersion, version.BuildInfo())
		},
	}
	hideInheritedFlags(versionCommand)
	rootCommand.AddCommand(versionCommand)

	attachCommand := &cobra.Command{
		Use:   "attach host:port",
		Short: "Attach to a JVM and print a stack trace for every thread.",
		Long: `Attach connects to the JDWP debug port of a running JVM, suspends it,
prints one stack trace per thread and resumes it. Start the JVM with
-agentlib:jdwp=transport=dt_socket,server=y,suspend=n,address=<port>
to expose the port.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return attachCmd(args[0])
		},
	}
	attachCommand.Flags().BoolVarP(&noSuspend, "no-suspend", "", false, "Do not suspend the JVM while collecting stack traces.")
	rootCommand.AddCommand(attachCommand)

	dumpCommand := &cobra.Command{
		Use:   "dump file",
		Short: "Print a stack trace for every thread recorded in an hprof heap dump.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpCmd(args[0])
		},
	}
	rootCommand.AddCommand(dumpCommand)

	for _, c := range []*cobra.Command{attachCommand, dumpCommand} {
		c.Flags().IntVarP(&maxFrames, "max-frames", "", 0, "Maximum number of frames printed per thread (0 = unlimited).")
		c.Flags().BoolVarP(&noColor, "no-color", "", false, "Disable colorized output.")
	}

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		conf = config.LoadConfig()
		return logflags.Setup(log, logOutput, logDest)
	}
	rootCommand.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		logflags.Close()
	}

	return rootCommand
}

// hideInheritedFlags hides flags inherited from the root command in the
// help output of subcommands where they do not apply. Cobra still parses
// them, so the command line grammar stays the same.
func hideInheritedFlags(cmd *cobra.Command) {
	helpFunc := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		c.InheritedFlags().VisitAll(func(f *pflag.Flag) {
			f.Hidden = true
		})
		helpFunc(c, args)
	})
}

func attachCmd(addr string) error {
	vm, err := jdwp.Attach(addr)
	if err != nil {
		return fmt.Errorf("could not attach to %s: %v", addr, err)
	}
	defer vm.Close()

	if !noSuspend && conf.SuspendOnAttachDefault() {
		if err := vm.Suspend(); err != nil {
			return err
		}
		defer vm.Resume()
	}
	return printStackTraces(stdout(), vm)
}

func dumpCmd(path string) error {
	snap, err := hprof.Open(path)
	if err != nil {
		return fmt.Errorf("could not read heap dump %s: %v", path, err)
	}
	return printStackTraces(stdout(), snap)
}

func stdout() io.Writer {
	return colorable.NewColorableStdout()
}

func useColors() bool {
	if noColor || (conf != nil && conf.DisableColors) {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

const (
	ansiBold  = "\x1b[1m"
	ansiFaint = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

func frameLimit() int {
	if maxFrames > 0 {
		return maxFrames
	}
	if conf != nil {
		return conf.MaxFramesDefault()
	}
	return 0
}

// printStackTraces writes one stack trace per thread in the form
// ClassName.methodName()[:lineNumber]. It only uses the backend-agnostic
// object model, so live connections and heap dumps print identically.
func printStackTraces(w io.Writer, vm jvm.VirtualMachine) error {
	colors := useColors()
	limit := frameLimit()

	threads, err := vm.AllThreads()
	if err != nil {
		return err
	}
	for _, thread := range threads {
		name, err := thread.Name()
		if err != nil {
			return err
		}
		if colors {
			fmt.Fprintf(w, "%sThread %d: %s%s\n", ansiBold, thread.UniqueID(), name, ansiReset)
		} else {
			fmt.Fprintf(w, "Thread %d: %s\n", thread.UniqueID(), name)
		}

		frames, err := thread.Frames()
		if err != nil {
			return err
		}
		for i, frame := range frames {
			if limit > 0 && i >= limit {
				fmt.Fprintf(w, "    ... %d more\n", len(frames)-i)
				break
			}
			if err := printFrame(w, frame, colors); err != nil {
				return err
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printFrame(w io.Writer, frame jvm.StackFrame, colors bool) error {
	loc, err := frame.Location()
	if err != nil {
		return err
	}
	typ, err := loc.DeclaringType()
	if err != nil {
		return err
	}
	className, err := typ.Name()
	if err != nil {
		return err
	}
	m, err := loc.Method()
	if err != nil {
		return err
	}
	methodName, err := m.Name()
	if err != nil {
		return err
	}
	line, ok, err := loc.LineNumber()
	if err != nil {
		return err
	}
	if ok {
		if colors {
			fmt.Fprintf(w, "    %s.%s()%s:%d%s\n", className, methodName, ansiFaint, line, ansiReset)
		} else {
			fmt.Fprintf(w, "    %s.%s():%d\n", className, methodName, line)
		}
	} else {
		fmt.Fprintf(w, "    %s.%s()\n", className, methodName)
	}
	return nil
}
