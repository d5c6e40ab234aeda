// Package main provides the arbor command line tool for inspecting and
// maintaining arbor stores.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/arbor"
	"github.com/KilimcininKorOglu/arbor/internal/logging"
)

func main() {
	exitCode := run(os.Args, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// run executes the CLI and returns an exit code.
// This is separated from main() to facilitate testing.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// cli holds the state shared by all commands.
type cli struct {
	stdout, stderr io.Writer
	logLevel       string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "arbor",
		Short:         "Inspect and maintain arbor versioned tree stores",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		c.createCmd(),
		c.infoCmd(),
		c.verifyCmd(),
		c.dumpCmd(),
		c.configCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) logger() arbor.Logger {
	return logging.NewWithWriter(c.stderr, logging.Config{Level: c.logLevel, Format: "text"})
}

// openSession opens the store at dir. The returned func closes it.
func (c *cli) openSession(dir string) (*arbor.Session, func(), error) {
	st, err := arbor.Open(dir, arbor.WithLogger(c.logger()))
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := arbor.Close(st.Location()); err != nil {
			fmt.Fprintf(c.stderr, "Warning: closing store: %v\n", err)
		}
	}
	sess, err := st.Session()
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return sess, closeStore, nil
}
