package config

// FileName is the engine configuration file looked up by FindConfig.
const FileName = "dynlink.yaml"

// FileNames are all recognized configuration file names.
var FileNames = []string{"dynlink.yaml", "dynlink.yml"}

// Special name segments recognized by the resolver.
const (
	ThisName        = "this"
	SuperName       = "super"
	GlobalName      = "global"
	CallerName      = "caller"
	CallstackName   = "callstack"
	NamespaceName   = "namespace"
	VariablesName   = "variables"
	MethodsName     = "methods"
	InterpreterName = "interpreter"
	LengthName      = "length"
)

// SpecialNames are the segments with resolver-defined meaning. None of them
// may be an assignment target, alone or after a self handle.
var SpecialNames = []string{
	ThisName, SuperName, GlobalName, CallerName, CallstackName,
	NamespaceName, VariablesName, MethodsName, InterpreterName,
}

// Accessor prefixes for the property convention.
const (
	GetterPrefix = "get"
	SetterPrefix = "set"
	IsPrefix     = "is"
)

// Script method names with special meaning.
const (
	// InvokeFallbackName is consulted when an unqualified call finds no method.
	InvokeFallbackName = "invoke"
	// UntypedName declares a loosely typed variable.
	UntypedName = "var"
)

// Default imports installed in root scopes.
var (
	DefaultImportPackages = []string{"lang", "util"}
	DefaultImportClasses  = []string{}
)

// GlobalScopeName is the name of the root scope of an environment.
const GlobalScopeName = "global"

// NativeFrameName labels the sentinel frame returned past the end of a call stack.
const NativeFrameName = "<native>"
