// runcode submits one source file to Judge0 and waits for the verdict.
//
// Usage:
//
//	runcode -lang 71 -file main.py [-stdin input.txt] [-url http://localhost:2358]
//
// Credentials and polling settings come from the JUDGE0_* environment
// variables. Exit status is 0 when the program was accepted, 1 for any other
// verdict or error, and 2 when polling gave up (the token is printed so the
// submission can be checked later).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/config"
	"github.com/gsarma/judgerun/internal/logger"
)

const (
	exitAccepted = 0
	exitFailed   = 1
	exitTimeout  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(status)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runcode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lang := fs.Int("lang", 0, "Judge0 language id (71 = Python 3)")
	file := fs.String("file", "", "source file, or - to read it from stdin")
	inputFile := fs.String("stdin", "", "file passed to the program as standard input")
	baseURL := fs.String("url", "", "Judge0 base URL (overrides JUDGE0_URL)")
	verbose := fs.Bool("v", false, "log every poll")
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}
	if *lang == 0 || *file == "" {
		fmt.Fprintln(stderr, "runcode: -lang and -file are required")
		fs.Usage()
		return exitFailed
	}

	source, err := readSource(*file, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "runcode: %v\n", err)
		return exitFailed
	}
	var input []byte
	if *inputFile != "" {
		if input, err = os.ReadFile(*inputFile); err != nil {
			fmt.Fprintf(stderr, "runcode: %v\n", err)
			return exitFailed
		}
	}

	j0, err := config.LoadJudge0()
	if err != nil {
		fmt.Fprintf(stderr, "runcode: %v\n", err)
		return exitFailed
	}
	cfg := j0.ClientConfig()
	if *baseURL != "" {
		cfg.URL = *baseURL
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console", Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "runcode: %v\n", err)
		return exitFailed
	}
	defer log.Sync()

	client := code.NewJudge0Client(cfg, code.WithLogger(log))
	res, err := client.Execute(ctx, code.JobSpec{
		SourceCode: string(source),
		LanguageID: *lang,
		Stdin:      string(input),
	})
	if err != nil {
		var timeout *code.ExecutionTimeoutError
		if errors.As(err, &timeout) {
			fmt.Fprintf(stderr, "runcode: no verdict after %d polls; check later with token %s\n", timeout.Attempts, timeout.Token)
			return exitTimeout
		}
		log.Debug("execute failed", zap.Error(err))
		fmt.Fprintf(stderr, "runcode: %v\n", err)
		return exitFailed
	}

	printResult(res, stdout, stderr)
	if res.Status.ID != code.StatusAccepted {
		return exitFailed
	}
	return exitAccepted
}

func readSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// printResult writes the program's stdout to stdout and everything else to stderr.
func printResult(res *code.Result, stdout, stderr io.Writer) {
	io.WriteString(stdout, res.Stdout)
	if res.CompileOutput != "" {
		fmt.Fprintf(stderr, "--- compile output ---\n%s\n", res.CompileOutput)
	}
	if res.Stderr != "" {
		fmt.Fprintf(stderr, "--- stderr ---\n%s\n", res.Stderr)
	}
	if res.Message != "" {
		fmt.Fprintf(stderr, "--- message ---\n%s\n", res.Message)
	}
	fmt.Fprintf(stderr, "status: %d %s (time %ss, memory %d KB, token %s)\n",
		res.Status.ID, res.Status.Description, res.Time, res.Memory, res.Token)
}
