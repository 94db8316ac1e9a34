package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/process"
	"github.com/spf13/pflag"

	"fileprocessor/internal/logging"
)

// Peer is a process table entry.
type Peer struct {
	PID  int32
	Args []string
	Cwd  string
}

// ProcessTableOptions tunes a ProcessTable.
type ProcessTableOptions struct {
	// Flags returns a fresh flag set describing the command line that peers
	// were started with. Unknown flags are always tolerated.
	Flags func() *pflag.FlagSet
	// Command is the subcommand that precedes the working directory.
	Command string
	// Processes lists the process table. Defaults to gopsutil.
	Processes func(ctx context.Context) ([]Peer, error)
	// Self is this process. Defaults to os.Getpid and os.Args.
	SelfPID  int32
	SelfArgs []string
}

// ProcessTable admits a start when fewer than max other processes with the
// same invocation prefix declare the same working directory.
type ProcessTable struct {
	dir    string
	max    int
	opts   ProcessTableOptions
	logger *slog.Logger
}

// NewProcessTable constructs the process-table guard for the absolute dir.
func NewProcessTable(dir string, max int, logger *slog.Logger, opts ProcessTableOptions) *ProcessTable {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Processes == nil {
		opts.Processes = listProcesses
	}
	if opts.SelfPID == 0 {
		opts.SelfPID = int32(os.Getpid())
	}
	if opts.SelfArgs == nil {
		opts.SelfArgs = os.Args
	}
	return &ProcessTable{
		dir:    filepath.Clean(dir),
		max:    max,
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "guard")),
	}
}

// Admit counts matching peers and refuses when the count reached max.
func (g *ProcessTable) Admit(ctx context.Context) (Admission, error) {
	peers, err := g.opts.Processes(ctx)
	if err != nil {
		return Admission{}, fmt.Errorf("list processes: %w", err)
	}

	prefix, err := g.selfPrefix(peers)
	if err != nil {
		return Admission{}, err
	}

	count := 0
	for _, peer := range peers {
		if peer.PID == g.opts.SelfPID || !hasPrefix(peer.Args, prefix) {
			continue
		}
		for _, dir := range g.declaredDirs(peer.Args[len(prefix):]) {
			if !filepath.IsAbs(dir) {
				if peer.Cwd == "" {
					continue
				}
				dir = filepath.Join(peer.Cwd, dir)
			}
			if filepath.Clean(dir) == g.dir {
				count++
				break
			}
		}
	}

	g.logger.Debug("counted peer instances",
		logging.String(logging.FieldPath, g.dir),
		logging.Int("peers", count),
		logging.Int("max", g.max),
	)
	if count >= g.max {
		return Admission{Peers: count}, fmt.Errorf("%d running for %s: %w", count, g.dir, ErrTooManyInstances)
	}
	return Admission{Peers: count}, nil
}

// selfPrefix is this process's argv up to and including os.Args[0], taken
// from the process table so interpreters and wrappers are part of it.
func (g *ProcessTable) selfPrefix(peers []Peer) ([]string, error) {
	if len(g.opts.SelfArgs) == 0 {
		return nil, ErrSelfIdentify
	}
	argv0 := g.opts.SelfArgs[0]
	for _, peer := range peers {
		if peer.PID != g.opts.SelfPID {
			continue
		}
		for i, arg := range peer.Args {
			if arg == argv0 {
				return peer.Args[:i+1], nil
			}
		}
		break
	}
	return nil, fmt.Errorf("pid %d: %w", g.opts.SelfPID, ErrSelfIdentify)
}

// declaredDirs returns the working directory a peer was started with. A flag
// this build does not know may or may not take a value, so both readings are
// returned when they differ.
func (g *ProcessTable) declaredDirs(args []string) []string {
	var dirs []string
	if dir, ok := g.declaredDir(args); ok {
		dirs = append(dirs, dir)
	}
	if stripped, changed := stripUnknownFlags(g.flagSet(), args); changed {
		if dir, ok := g.declaredDir(stripped); ok && (len(dirs) == 0 || dirs[0] != dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (g *ProcessTable) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("peer", pflag.ContinueOnError)
	if g.opts.Flags != nil {
		fs = g.opts.Flags()
	}
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}

// declaredDir parses args the way pflag does: an unknown flag written without
// "=" swallows the argument after it.
func (g *ProcessTable) declaredDir(args []string) (string, bool) {
	fs := g.flagSet()
	if err := fs.Parse(args); err != nil {
		return "", false
	}

	positional := fs.Args()
	if g.opts.Command != "" {
		if len(positional) == 0 || positional[0] != g.opts.Command {
			return "", false
		}
		positional = positional[1:]
	}
	if len(positional) == 0 || positional[0] == "" {
		return "", false
	}
	return positional[0], true
}

// stripUnknownFlags drops every flag token fs does not define, leaving the
// argument after it in place.
func stripUnknownFlags(fs *pflag.FlagSet, args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	changed := false
	for i, arg := range args {
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			out = append(out, arg)
			continue
		}
		var known bool
		if strings.HasPrefix(arg, "--") {
			name, _, _ := strings.Cut(arg[2:], "=")
			known = fs.Lookup(name) != nil
		} else {
			known = fs.ShorthandLookup(arg[1:2]) != nil
		}
		if !known {
			changed = true
			continue
		}
		out = append(out, arg)
	}
	return out, changed
}

func hasPrefix(args, prefix []string) bool {
	if len(args) < len(prefix) {
		return false
	}
	for i := range prefix {
		if args[i] != prefix[i] {
			return false
		}
	}
	return true
}

func listProcesses(ctx context.Context) ([]Peer, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	peers := make([]Peer, 0, len(pids))
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		args, err := proc.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) == 0 {
			// Exited or not readable by this user.
			continue
		}
		cwd, _ := proc.CwdWithContext(ctx)
		peers = append(peers, Peer{PID: pid, Args: args, Cwd: cwd})
	}
	return peers, nil
}
