// bldms is a simple CLI for interacting with bldms image files.
//
// Usage:
//
//	bldms [-config file.jsonc] <image-path>   Bind an image, start the REPL
//
// Use bldms-format to create a new image first.
//
// Commands (in REPL):
//
//	append <text>      Append a message, prints its block index
//	read <index>       Read a block if currently valid
//	invalidate <index> Invalidate a block
//	stream             Open a streaming session over a fresh read
//	next               Deliver the next message from the open session
//	rewind             Reset the open session to the first message
//	info               Show bind info (N, last_written)
//	help               Show this help
//	exit / quit / q    Exit
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"

	"bldms.dev/bldms/internal/cliconfig"
	"bldms.dev/bldms/pkg/bldms"
	"bldms.dev/bldms/pkg/fs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("bldms", flag.ContinueOnError)
	configPath := flags.String("config", "", "JSONC config file for engine options")
	flags.Usage = printUsage

	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() < 1 {
		printUsage()
		return errors.New("missing image path")
	}

	path := flags.Arg(0)
	fsys := fs.NewReal()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s does not exist (use bldms-format to create it)", path)
		}

		return fmt.Errorf("checking %s: %w", path, err)
	}

	cfg, err := cliconfig.Load(*configPath)
	if err != nil {
		return err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	binder := bldms.NewBinder(fsys)

	engine, err := binder.Bind(path, opts)
	if err != nil {
		return fmt.Errorf("binding %s: %w", path, err)
	}
	defer binder.Unbind()

	repl := &REPL{engine: engine, path: path}

	return repl.Run()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bldms [-config file.jsonc] <image-path>\n\n")
	fmt.Fprintf(os.Stderr, "Use bldms-format to create a new image.\n")
}

// REPL is the interactive command loop.
type REPL struct {
	engine  *bldms.Engine
	path    string
	session *bldms.Session
	liner   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".bldms_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("bldms - block store CLI (%s, N=%d)\n", r.path, r.engine.N())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("bldms> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			if r.session != nil {
				r.session.Close()
			}

			return nil

		case "help", "?":
			r.printHelp()

		case "append":
			r.cmdAppend(args)

		case "read":
			r.cmdRead(args)

		case "invalidate", "inval":
			r.cmdInvalidate(args)

		case "stream":
			r.cmdStream()

		case "next":
			r.cmdNext()

		case "rewind":
			r.cmdRewind()

		case "info":
			r.cmdInfo()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	var buf bytes.Buffer
	if _, err := r.liner.WriteHistory(&buf); err != nil {
		return
	}

	// Atomic replace so an interrupted exit never truncates the history.
	_ = atomic.WriteFile(path, bytes.NewReader(buf.Bytes()))
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"append", "read", "invalidate", "inval",
		"stream", "next", "rewind", "info",
		"clear", "cls", "help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			completions = append(completions, c)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  append <text>      Append a message, prints its block index")
	fmt.Println("  read <index>       Read a block if currently valid")
	fmt.Println("  invalidate <index> Invalidate a block")
	fmt.Println("  stream             Open a streaming session over a fresh read")
	fmt.Println("  next               Deliver the next message from the open session")
	fmt.Println("  rewind             Reset the open session to the first message")
	fmt.Println("  info               Show bind info (N, last_written)")
	fmt.Println("  help               Show this help")
	fmt.Println("  exit / quit / q    Exit")
}

func (r *REPL) cmdAppend(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: append <text>")

		return
	}

	payload := []byte(strings.Join(args, " "))

	idx, err := r.engine.Append(payload)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: appended to block %d (%d bytes)\n", idx, len(payload))
}

func (r *REPL) cmdRead(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: read <index>")

		return
	}

	idx, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing index: %v\n", err)

		return
	}

	buf := make([]byte, bldms.MaxPayloadSize)

	n, err := r.engine.ReadBlock(idx, buf)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("block %d (%d bytes): %q\n", idx, n, string(buf[:n]))
}

func (r *REPL) cmdInvalidate(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: invalidate <index>")

		return
	}

	idx, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Error parsing index: %v\n", err)

		return
	}

	if err := r.engine.Invalidate(idx); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: invalidated block %d\n", idx)
}

func (r *REPL) cmdStream() {
	if r.session != nil {
		r.session.Close()
	}

	r.session = r.engine.OpenSession()

	fmt.Println("OK: opened streaming session")
}

func (r *REPL) cmdNext() {
	if r.session == nil {
		fmt.Println("No session open; use 'stream' first")

		return
	}

	buf := make([]byte, bldms.MaxPayloadSize)

	n, ok, err := r.session.Next(buf)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if !ok {
		fmt.Println("(end of stream)")

		return
	}

	fmt.Printf("%q\n", string(buf[:n]))
}

func (r *REPL) cmdRewind() {
	if r.session == nil {
		fmt.Println("No session open; use 'stream' first")

		return
	}

	if err := r.session.Rewind(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: rewound session")
}

func (r *REPL) cmdInfo() {
	fmt.Printf("Image:        %s\n", r.path)
	fmt.Printf("Blocks (N):   %d\n", r.engine.N())
	fmt.Printf("Last written: %d\n", r.engine.LastWritten())

	sessionState := "(none)"
	if r.session != nil {
		sessionState = "open"
	}

	fmt.Printf("Session:      %s\n", sessionState)
}
