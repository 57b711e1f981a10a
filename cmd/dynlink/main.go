package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/evaluator"
	"github.com/funvibe/dynlink/internal/host"
	dynlink "github.com/funvibe/dynlink/pkg/embed"
)

const usage = `Usage: dynlink <command> [options] [args] <file.proto>...

Commands:
  types                     list the types declared by the proto files
  members <type>            list the fields, constructors and methods of a type
  resolve <name>            resolve a dotted name and print its value
  help                      show this message

Options:
  -I <dir>                  add a proto import path (repeatable)
  -config <file>            use this dynlink.yaml instead of searching for one
`

var errUsage = errors.New("usage")

// invocation is a parsed command line.
type invocation struct {
	command    string
	arg        string
	importDirs []string
	configPath string
	files      []string
}

func parseArgs(args []string) (*invocation, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	inv := &invocation{command: args[0]}
	var rest []string
	for i := 1; i < len(args); i++ {
		switch a := args[i]; a {
		case "-I", "--import":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a directory", a)
			}
			i++
			inv.importDirs = append(inv.importDirs, args[i])
		case "-config", "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a file", a)
			}
			i++
			inv.configPath = args[i]
		default:
			if dir, ok := strings.CutPrefix(a, "-I"); ok && dir != "" {
				inv.importDirs = append(inv.importDirs, dir)
				continue
			}
			rest = append(rest, a)
		}
	}
	switch inv.command {
	case "help", "-help", "--help":
		inv.command = "help"
		return inv, nil
	case "types":
	case "members", "resolve":
		if len(rest) == 0 {
			return nil, fmt.Errorf("%s needs a name", inv.command)
		}
		inv.arg, rest = rest[0], rest[1:]
	default:
		return nil, fmt.Errorf("unknown command %q", inv.command)
	}
	inv.files = rest
	if len(inv.importDirs) == 0 {
		inv.importDirs = []string{"."}
	}
	return inv, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		found, err := config.FindConfig(".")
		if err != nil || found == "" {
			return config.Default(), err
		}
		path = found
	}
	return config.LoadConfig(path)
}

// newEngine builds an engine over the proto files of inv, with every proto
// package imported into the global scope.
func newEngine(inv *invocation) (*dynlink.Engine, error) {
	cfg, err := loadConfig(inv.configPath)
	if err != nil {
		return nil, err
	}
	e := dynlink.New(cfg)
	if len(inv.files) > 0 {
		if err := e.Proto().LoadFiles(inv.importDirs, inv.files...); err != nil {
			e.Close()
			return nil, err
		}
	}
	seen := map[string]bool{}
	for _, name := range e.Proto().Types() {
		if i := strings.LastIndexByte(name, '.'); i > 0 && !seen[name[:i]] {
			seen[name[:i]] = true
			e.Import(name[:i])
		}
	}
	return e, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	inv, err := parseArgs(args)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "dynlink: %v\n", err)
		}
		fmt.Fprint(stderr, usage)
		return 2
	}
	if inv.command == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	e, err := newEngine(inv)
	if err != nil {
		fmt.Fprintf(stderr, "dynlink: %v\n", err)
		return 1
	}
	defer e.Close()

	switch inv.command {
	case "types":
		err = listTypes(stdout, e)
	case "members":
		err = listMembers(stdout, e, inv.arg)
	case "resolve":
		err = resolve(stdout, e, inv.arg)
	}
	if err != nil {
		_ = e.Report(stderr, err)
		return 1
	}
	return 0
}

func listTypes(w io.Writer, e *dynlink.Engine) error {
	for _, name := range e.Proto().Types() {
		t, _ := e.Proto().ResolveType(name)
		line := host.DisplayName(t)
		if sup := t.Super(); sup != nil && sup != host.ObjectType {
			line += " extends " + host.DisplayName(sup)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func listMembers(w io.Writer, e *dynlink.Engine, name string) error {
	t, ok := e.Global().ResolveType(name)
	if !ok {
		return fmt.Errorf("type %s: %w", name, dynlink.ErrNotFound)
	}
	capability := e.Environment().Capability()
	fmt.Fprintln(w, host.DisplayName(t))
	for _, c := range capability.Constructors(t, false) {
		fmt.Fprintf(w, "  new(%s)\n", typeList(c.Params()))
	}
	for cur := t; cur != nil && cur != host.ObjectType; cur = cur.Super() {
		fields := capability.Fields(cur, "", false)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name() < fields[j].Name() })
		for _, f := range fields {
			fmt.Fprintf(w, "  %s%s %s\n", modifiers(f.Static(), f.Final()), host.DisplayName(f.Type()), f.Name())
		}
		methods := capability.Methods(cur, "", -1, false)
		sort.SliceStable(methods, func(i, j int) bool { return methods[i].Name() < methods[j].Name() })
		for _, m := range methods {
			fmt.Fprintf(w, "  %s%s %s(%s)\n", modifiers(m.Static(), false), host.DisplayName(m.Return()), m.Name(), typeList(m.Params()))
		}
	}
	return nil
}

func modifiers(static, final bool) string {
	var b strings.Builder
	if static {
		b.WriteString("static ")
	}
	if final {
		b.WriteString("final ")
	}
	return b.String()
}

func typeList(ts []host.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = host.DisplayName(t)
	}
	return strings.Join(names, ", ")
}

func resolve(w io.Writer, e *dynlink.Engine, name string) error {
	cs := evaluator.NewCallStack(e.Global())
	obj, err := e.Global().NameResolver(name).ToObject(cs, false)
	if err != nil {
		return err
	}
	if obj == evaluator.VOID {
		return fmt.Errorf("%s: %w", name, dynlink.ErrNotFound)
	}
	fmt.Fprintln(w, obj.Inspect())
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
