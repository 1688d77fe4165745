package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/registry"
)

// Command is one interactive instruction. Index is 1-based into the registry
// listing; zero means every task.
type Command struct {
	Action string
	Index  int
}

func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	var cmd Command
	switch fields[0] {
	case "p", "pause":
		cmd.Action = "pause"
	case "r", "resume":
		cmd.Action = "resume"
	case "s", "stop":
		cmd.Action = "stop"
	case "d", "delete", "rm":
		cmd.Action = "remove"
	case "l", "ls", "list":
		cmd.Action = "list"
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return Command{}, fmt.Errorf("invalid index %q", fields[1])
		}
		cmd.Index = n
	}
	if cmd.Action == "remove" && cmd.Index == 0 {
		return Command{}, fmt.Errorf("remove needs an index")
	}
	return cmd, nil
}

// Apply runs cmd against reg, writing listings to w.
func Apply(cmd Command, reg *registry.Registry, w io.Writer) error {
	entries := reg.Entries()
	if cmd.Index > len(entries) {
		return fmt.Errorf("no download #%d (have %d)", cmd.Index, len(entries))
	}
	targets := entries
	if cmd.Index > 0 {
		targets = entries[cmd.Index-1 : cmd.Index]
	}
	for _, e := range targets {
		switch cmd.Action {
		case "pause":
			reg.Pause(e.Handle)
		case "resume":
			reg.Resume(e.Handle)
		case "stop":
			reg.Stop(e.Handle)
		case "remove":
			reg.Remove(e.Handle)
		}
	}
	if cmd.Action == "list" {
		PrintListing(w, entries)
	}
	return nil
}

// PrintListing writes one line per task: position, state, progress, file path.
func PrintListing(w io.Writer, entries []registry.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, output.FDebug("  no downloads"))
		return
	}
	for i, e := range entries {
		info := e.Task.Snapshot()
		fmt.Fprintf(w, "  %s %-11s %3d%% %s %s\n",
			output.FInfo(fmt.Sprintf("%2d.", i+1)),
			info.State,
			info.Progress,
			output.FDetail(info.FileName),
			output.FDebug(info.Path))
	}
}

// Control reads commands line by line from in until EOF or ctx ends. The
// display is paused while a listing is printed.
func Control(ctx context.Context, in io.Reader, w io.Writer, reg *registry.Registry, mgr *output.Manager) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := ParseCommand(line)
			if err == nil && cmd.Action == "list" && mgr != nil {
				mgr.Pause()
				err = Apply(cmd, reg, w)
				mgr.Resume()
			} else if err == nil {
				err = Apply(cmd, reg, w)
			}
			if err != nil {
				fmt.Fprintln(w, output.FError("  "+err.Error()+" (commands: p|r|s [n], d n, l)"))
			}
		}
	}
}
