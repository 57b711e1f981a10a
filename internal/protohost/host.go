// Package protohost exposes protobuf schemas as host types. Messages become
// classes with one field per proto field, enums become classes of static int
// constants, and services become classes whose methods perform unary RPCs
// over a bound gRPC connection.
package protohost

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"

	"github.com/funvibe/dynlink/internal/host"
)

var (
	// MessageType is the superclass of every message class.
	MessageType = host.NewClass("proto.Message", nil)
	// StubType is the superclass of every service class.
	StubType = host.NewClass("grpc.Stub", nil)
	// StatusExceptionType reports a failed RPC.
	StatusExceptionType = host.NewClass("grpc.StatusException", host.RuntimeExceptionType)
)

var baseTypes = map[string]host.Type{
	MessageType.Name():         MessageType,
	StubType.Name():            StubType,
	StatusExceptionType.Name(): StatusExceptionType,
}

// Host is a host.Capability over loaded proto files.
type Host struct {
	host.Broadcaster

	mu     sync.RWMutex
	conn   grpc.ClientConnInterface
	files  map[string]*desc.FileDescriptor
	byName map[string]*entry
	// byProto indexes entries by proto full name.
	byProto map[string]*entry
}

type entry struct {
	typ     *host.BasicType
	msg     *desc.MessageDescriptor
	enum    *desc.EnumDescriptor
	svc     *desc.ServiceDescriptor
	fields  []host.Field
	methods []host.Method
	ctors   []host.Constructor
}

func New() *Host {
	return &Host{
		files:   make(map[string]*desc.FileDescriptor),
		byName:  make(map[string]*entry),
		byProto: make(map[string]*entry),
	}
}

// Bind sets the connection used by service stubs created afterwards.
func (h *Host) Bind(conn grpc.ClientConnInterface) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

func (h *Host) connection() grpc.ClientConnInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// LoadSource parses proto sources held in memory. files maps import paths
// to file contents; names selects the files to load, all of them if empty.
func (h *Host) LoadSource(files map[string]string, names ...string) error {
	if len(names) == 0 {
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	parser := protoparse.Parser{Accessor: protoparse.FileContentsFromMap(files)}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return fmt.Errorf("protohost: parse: %w", err)
	}
	return h.Load(fds...)
}

// LoadFiles parses proto files from disk, resolving imports against
// importPaths.
func (h *Host) LoadFiles(importPaths []string, names ...string) error {
	parser := protoparse.Parser{ImportPaths: importPaths}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return fmt.Errorf("protohost: parse: %w", err)
	}
	return h.Load(fds...)
}

// Load registers the types of already parsed files and their dependencies.
// Files loaded before are skipped.
func (h *Host) Load(fds ...*desc.FileDescriptor) error {
	h.mu.Lock()
	var fresh []*desc.FileDescriptor
	seen := make(map[string]bool)
	var walk func(fd *desc.FileDescriptor)
	walk = func(fd *desc.FileDescriptor) {
		if seen[fd.GetName()] || h.files[fd.GetName()] != nil {
			return
		}
		seen[fd.GetName()] = true
		for _, dep := range fd.GetDependencies() {
			walk(dep)
		}
		fresh = append(fresh, fd)
	}
	for _, fd := range fds {
		walk(fd)
	}

	var added []*entry
	for _, fd := range fresh {
		for _, md := range fd.GetMessageTypes() {
			added = h.declareMessageLocked(md, added)
		}
		for _, ed := range fd.GetEnumTypes() {
			added = append(added, h.declareLocked(&entry{enum: ed}, ed.GetFullyQualifiedName(), ed.GetFile().GetPackage()))
		}
		for _, sd := range fd.GetServices() {
			added = append(added, h.declareLocked(&entry{svc: sd}, sd.GetFullyQualifiedName(), sd.GetFile().GetPackage()))
		}
	}
	var err error
	for _, e := range added {
		if e == nil {
			err = fmt.Errorf("protohost: conflicting type names in %v", fileNames(fresh))
			continue
		}
		h.buildLocked(e)
	}
	for _, fd := range fresh {
		h.files[fd.GetName()] = fd
	}
	h.mu.Unlock()

	if len(added) > 0 {
		h.Notify()
	}
	return err
}

func fileNames(fds []*desc.FileDescriptor) []string {
	out := make([]string, len(fds))
	for i, fd := range fds {
		out[i] = fd.GetName()
	}
	return out
}

func (h *Host) declareMessageLocked(md *desc.MessageDescriptor, added []*entry) []*entry {
	if md.IsMapEntry() {
		return added
	}
	added = append(added, h.declareLocked(&entry{msg: md}, md.GetFullyQualifiedName(), md.GetFile().GetPackage()))
	for _, nested := range md.GetNestedMessageTypes() {
		added = h.declareMessageLocked(nested, added)
	}
	for _, ed := range md.GetNestedEnumTypes() {
		added = append(added, h.declareLocked(&entry{enum: ed}, ed.GetFullyQualifiedName(), ed.GetFile().GetPackage()))
	}
	return added
}

// declareLocked creates the host type of e. It returns nil when the name is
// already taken.
func (h *Host) declareLocked(e *entry, fullName, pkg string) *entry {
	name := HostName(fullName, pkg)
	if h.byName[name] != nil {
		return nil
	}
	switch {
	case e.msg != nil:
		e.typ = host.NewClass(name, MessageType)
	case e.svc != nil:
		e.typ = host.NewClass(name, StubType)
	default:
		e.typ = host.NewClass(name, nil)
	}
	h.byName[name] = e
	h.byProto[fullName] = e
	return e
}

// HostName maps a proto full name to a host type name. Nested types are
// joined with '$': bank.v1.Account.Entry becomes bank.v1.Account$Entry.
func HostName(fullName, pkg string) string {
	if pkg == "" {
		return strings.ReplaceAll(fullName, ".", "$")
	}
	rel := strings.TrimPrefix(fullName, pkg+".")
	return pkg + "." + strings.ReplaceAll(rel, ".", "$")
}

// FindMessage returns the descriptor of a loaded message by proto full name.
func (h *Host) FindMessage(fullName string) (*desc.MessageDescriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e := h.byProto[fullName]; e != nil && e.msg != nil {
		return e.msg, true
	}
	return nil, false
}

// FindService returns the descriptor of a loaded service by proto full name.
func (h *Host) FindService(fullName string) (*desc.ServiceDescriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e := h.byProto[fullName]; e != nil && e.svc != nil {
		return e.svc, true
	}
	return nil, false
}

// Files lists the names of the loaded files.
func (h *Host) Files() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.files))
	for name := range h.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Types lists the host names of the loaded messages, enums and services.
func (h *Host) Types() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byName))
	for name := range h.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveType implements host.Capability.
func (h *Host) ResolveType(name string) (host.Type, bool) {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		et, ok := h.ResolveType(elem)
		if !ok {
			return nil, false
		}
		return host.ArrayOf(et), true
	}
	if t, ok := baseTypes[name]; ok {
		return t, true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e := h.byName[name]; e != nil {
		return e.typ, true
	}
	return nil, false
}

// TypeOf implements host.Capability.
func (h *Host) TypeOf(v any) host.Type {
	var fullName string
	switch x := v.(type) {
	case *dynamic.Message:
		if x == nil {
			return nil
		}
		fullName = x.GetMessageDescriptor().GetFullyQualifiedName()
	case *Stub:
		fullName = x.svc.GetFullyQualifiedName()
	default:
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e := h.byProto[fullName]; e != nil {
		return e.typ
	}
	return nil
}

func (h *Host) entryFor(t host.Type) *entry {
	if t == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byName[t.Name()]
}

// Fields implements host.Capability.
func (h *Host) Fields(t host.Type, name string, _ bool) []host.Field {
	e := h.entryFor(t)
	if e == nil {
		return nil
	}
	var out []host.Field
	for _, f := range e.fields {
		if name == "" || f.Name() == name {
			out = append(out, f)
		}
	}
	return out
}

// Methods implements host.Capability.
func (h *Host) Methods(t host.Type, name string, arity int, _ bool) []host.Method {
	var list []host.Method
	if t != nil && t.Name() == MessageType.Name() {
		list = messageMethods
	} else if e := h.entryFor(t); e != nil {
		list = e.methods
	}
	var out []host.Method
	for _, m := range list {
		if (name == "" || m.Name() == name) && (arity < 0 || len(m.Params()) == arity) {
			out = append(out, m)
		}
	}
	return out
}

// Constructors implements host.Capability.
func (h *Host) Constructors(t host.Type, _ bool) []host.Constructor {
	e := h.entryFor(t)
	if e == nil {
		return nil
	}
	return append([]host.Constructor(nil), e.ctors...)
}
