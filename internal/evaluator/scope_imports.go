package evaluator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/funvibe/dynlink/internal/host"
)

// ImportClass makes a qualified type name resolvable by its simple name.
func (s *Scope) ImportClass(qualified string) {
	if s.importedClasses == nil {
		s.importedClasses = make(map[string]string)
	}
	s.importedClasses[host.SimpleName(qualified)] = qualified
	s.nameSpaceChanged()
}

// ImportPackage adds a wildcard package import. Re-importing moves the
// package to the end, giving it the highest precedence.
func (s *Scope) ImportPackage(pkg string) {
	s.importedPackages = moveToEnd(s.importedPackages, pkg, func(a, b string) bool { return a == b })
	s.nameSpaceChanged()
}

// ImportObject exposes the fields and methods of obj as unqualified names.
func (s *Scope) ImportObject(obj Object) {
	s.importedObjects = moveToEnd(s.importedObjects, obj, func(a, b Object) bool { return a == b })
	s.nameSpaceChanged()
}

// ImportStatic exposes the static fields and methods of t as unqualified
// names.
func (s *Scope) ImportStatic(t host.Type) {
	s.importedStatics = moveToEnd(s.importedStatics, t, host.Same)
	s.nameSpaceChanged()
}

func moveToEnd[T any](list []T, item T, eq func(a, b T) bool) []T {
	out := list[:0:0]
	for _, x := range list {
		if !eq(x, item) {
			out = append(out, x)
		}
	}
	return append(out, item)
}

// LoadDefaultImports installs the configured default imports.
func (s *Scope) LoadDefaultImports() {
	for _, pkg := range s.env.cfg.Imports.Packages {
		s.ImportPackage(pkg)
	}
	for _, cls := range s.env.cfg.Imports.Classes {
		s.ImportClass(cls)
	}
}

// ImportedPackages lists the wildcard imports, oldest first.
func (s *Scope) ImportedPackages() []string {
	return append([]string(nil), s.importedPackages...)
}

// importedVariable looks name up among the imported objects and static
// types, newest import first.
func (s *Scope) importedVariable(name string) (*Variable, error) {
	for i := len(s.importedObjects) - 1; i >= 0; i-- {
		switch obj := s.importedObjects[i].(type) {
		case *This:
			if v := obj.scope.variables[name]; v != nil {
				return v, nil
			}
		default:
			lv, err := s.env.objectField(obj, name)
			if err != nil {
				return nil, err
			}
			if lv != nil {
				return newBoundVariable(name, lv), nil
			}
		}
	}
	for i := len(s.importedStatics) - 1; i >= 0; i-- {
		f, err := s.env.findField(s.importedStatics[i], name, false)
		if err != nil {
			return nil, err
		}
		if f != nil && f.Static() {
			return newBoundVariable(name, &HostField{env: s.env, Field: f}), nil
		}
	}
	return nil, nil
}

// importedMethod looks a method up among the imported objects and static
// types, newest import first.
func (s *Scope) importedMethod(name string, args []host.Type) (*Method, error) {
	for i := len(s.importedObjects) - 1; i >= 0; i-- {
		switch obj := s.importedObjects[i].(type) {
		case *This:
			m, err := obj.scope.GetMethod(name, args, true)
			if err != nil || m != nil {
				return m, err
			}
		default:
			hm, err := s.env.resolveMethod(obj.RuntimeType(), name, args, false)
			if err != nil {
				return nil, err
			}
			if hm != nil {
				return s.env.hostMethod(hm, obj), nil
			}
		}
	}
	for i := len(s.importedStatics) - 1; i >= 0; i-- {
		hm, err := s.env.resolveMethod(s.importedStatics[i], name, args, false)
		if err != nil {
			return nil, err
		}
		if hm != nil && hm.Static() {
			return s.env.hostMethod(hm, nil), nil
		}
	}
	return nil, nil
}

// ResolveType resolves a type name visible from this scope. Unqualified
// names try explicit class imports, then package imports newest first, then
// the default package, then the parent scope. Qualified names are looked up
// absolutely.
func (s *Scope) ResolveType(name string) (host.Type, bool) {
	epoch := s.env.Epoch()
	if s.typeCache != nil && s.typeCacheEpoch != epoch {
		s.typeCache = nil
	}
	if t, ok := s.typeCache[name]; ok {
		return t, true
	}
	t, ok := s.resolveTypeLocal(name)
	if ok {
		if s.typeCache == nil {
			s.typeCache = make(map[string]host.Type)
			s.typeCacheEpoch = epoch
		}
		s.typeCache[name] = t
		return t, true
	}
	if s.parent != nil {
		return s.parent.ResolveType(name)
	}
	return s.env.classForName(name)
}

func (s *Scope) resolveTypeLocal(name string) (host.Type, bool) {
	if t, ok := host.Builtin(name); ok && host.IsPrimitive(t) {
		return t, true
	}
	if strings.Contains(name, ".") {
		return s.env.classForName(name)
	}
	if full, ok := s.importedClasses[name]; ok {
		if t, ok := s.env.classForName(full); ok {
			return t, true
		}
		s.env.logc(context.Background(), slog.LevelWarn, "imported class not found",
			slog.String("class", full), slog.String("scope", s.name))
	}
	for i := len(s.importedPackages) - 1; i >= 0; i-- {
		if t, ok := s.env.classForName(s.importedPackages[i] + "." + name); ok {
			return t, true
		}
	}
	return nil, false
}
