package dispatch

import (
	"strings"
	"sync"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
)

// HandlerFunc executes one command against the slice of the shard a key
// hashed to. It always runs on that shard's owning goroutine, inside a
// hop submitted by pkg/txn or pkg/squash.
type HandlerFunc func(slice *dbslice.Slice, argv [][]byte) resp.Value

// KeySpec locates a command's keys within argv the way Redis's COMMAND
// INFO does: keys start at First, advance by Step, and end at Last (a
// negative Last counts back from the end of argv, so -1 means "the last
// argument"). Step == 0 means the command has no keys.
type KeySpec struct {
	First int
	Last  int
	Step  int
}

// CommandOpt is a bitmask of the classification flags
// original_source/src/server/command_registry.cc calls CO::CommandOpt.
type CommandOpt uint32

const (
	OptWrite CommandOpt = 1 << iota
	OptReadonly
	OptBlocking
	OptGlobalTrans
	OptAdmin
	OptNoScript
	OptHidden
)

func (o CommandOpt) has(bit CommandOpt) bool { return o&bit != 0 }

// CommandSpec is one registered command: its arity, key positions,
// classification, and handler.
type CommandSpec struct {
	Name    string
	Arity   int // >=0 exact argc, <0 means "at least -Arity"
	Keys    KeySpec
	Opts    CommandOpt
	Handler HandlerFunc
}

// Write reports whether the command mutates the keyspace.
func (c *CommandSpec) Write() bool { return c.Opts.has(OptWrite) }

// Blocking reports whether the command may suspend waiting on a
// condition (BLPOP and friends).
func (c *CommandSpec) Blocking() bool { return c.Opts.has(OptBlocking) }

// Global reports whether the command must run as a global transaction
// touching every shard (FLUSHALL, SCRIPT FLUSH, ...).
func (c *CommandSpec) Global() bool { return c.Opts.has(OptGlobalTrans) }

// Admin reports whether the command is restricted to the admin surface.
func (c *CommandSpec) Admin() bool { return c.Opts.has(OptAdmin) }

// Transactional mirrors CommandId::IsTransactional: a command with a key
// position, or one flagged GLOBAL_TRANS, must go through the transaction
// coordinator rather than running unscheduled.
func (c *CommandSpec) Transactional() bool {
	return c.Keys.First > 0 || c.Opts.has(OptGlobalTrans)
}

// CheckArity reports whether argc (including the command name) satisfies
// the command's declared arity.
func (c *CommandSpec) CheckArity(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// ExtractKeys returns the command's keys given its full argv (argv[0] is
// the command name).
func (c *CommandSpec) ExtractKeys(argv [][]byte) []string {
	if c.Keys.Step == 0 || c.Keys.First <= 0 {
		return nil
	}
	last := c.Keys.Last
	if last < 0 {
		last = len(argv) + last
	}
	var keys []string
	for i := c.Keys.First; i <= last && i < len(argv); i += c.Keys.Step {
		keys = append(keys, string(argv[i]))
	}
	return keys
}

// Registry maps command names to their CommandSpec.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]*CommandSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]*CommandSpec)}
}

// Register upper-cases spec.Name and stores spec under it. A later Register
// call for the same name replaces the earlier one.
func (r *Registry) Register(spec *CommandSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec.Name = strings.ToUpper(spec.Name)
	r.cmds[spec.Name] = spec
}

// Lookup finds a command by name, case-insensitively.
func (r *Registry) Lookup(name string) (*CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.cmds[strings.ToUpper(name)]
	return spec, ok
}

// Names returns every registered command name, for COMMAND/COMMAND COUNT.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for name, spec := range r.cmds {
		if spec.Opts.has(OptHidden) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Count reports the number of non-hidden registered commands.
func (r *Registry) Count() int { return len(r.Names()) }
