// Package pysem is a tolerant semantic model of python projects for editor
// tooling. It turns source text, including text that is half typed, into
// bindings, scopes and inferred objects, which drive go-to-definition,
// completion, occurrence search and project-wide rename.
//
// # Model
//
// Every python file is parsed into a module whose scopes are built lazily.
// Names resolve on first use and the result is kept until the file, or a
// module it imports, changes. Inference is deliberately narrow: calls to
// classes give instances, calls to functions give what they return, and
// attribute access follows class bodies, bases and assignments to self
// attributes in __init__. Everything else is unknown.
//
// # Usage
//
//	e, err := pysem.New("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	def, err := e.ResolveAt("app/main.py", 120)
//	props, err := e.CodeAssist(buffer, cursor, "app/main.py")
//	cs, err := e.Rename("app/models.py", 48, "Invoice")
//
// # Dynamic inference
//
// [Engine.RunTraced] runs a module under a python tracer that reports, for
// each function call, what the function received and returned. The latest
// record per function fills in what static inference leaves unknown. Records
// of a file are discarded once its content no longer matches the traced run.
//
// # Scripts
//
// [Engine.RunScript] runs Risor scripts with host functions over the model.
// See the internal/runtime package for the globals exposed to scripts and
// the scripts package for the bundled ones.
package pysem
