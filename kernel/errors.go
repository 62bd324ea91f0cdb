package kernel

import "fmt"

// A StructuralError reports kernel code that violates the restricted
// grammar. Structural errors are always fatal to the analysis of the
// offending kernel and are never coerced into a partial model.
type StructuralError interface {
	error
	structural()
}

// UnsupportedTypeError reports a variable declared with a datatype other
// than the supported float kinds.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf(
		"unsupported type %q, only float and double variables are supported",
		e.Type)
}

func (*UnsupportedTypeError) structural() {}

// MalformedShapeError reports an array dimension that is not a product of
// integer constants and bound constants.
type MalformedShapeError struct {
	Var    string
	Detail string
}

func (e *MalformedShapeError) Error() string {
	return fmt.Sprintf("malformed shape for %q: %s", e.Var, e.Detail)
}

func (*MalformedShapeError) structural() {}

// UnsupportedConstructError reports a statement or expression outside the
// restricted kernel grammar, naming the offending construct.
type UnsupportedConstructError struct {
	Construct string
	Line, Col int
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("%d:%d: unsupported construct: %s",
		e.Line, e.Col, e.Construct)
}

func (*UnsupportedConstructError) structural() {}

// UnsupportedSubscriptError reports an array subscript that is not a loop
// index, loopIndex±constant, or a bare integer constant.
type UnsupportedSubscriptError struct {
	Subscript string
	Line, Col int
}

func (e *UnsupportedSubscriptError) Error() string {
	return fmt.Sprintf(
		"%d:%d: unsupported subscript %q, "+
			"only loop index, loop index ± constant, or constant are allowed",
		e.Line, e.Col, e.Subscript)
}

func (*UnsupportedSubscriptError) structural() {}

// UndeclaredIndexError reports a subscript that uses a variable which is
// not a declared loop index.
type UndeclaredIndexError struct {
	Index     string
	Line, Col int
}

func (e *UndeclaredIndexError) Error() string {
	return fmt.Sprintf("%d:%d: %q is not a loop index", e.Line, e.Col, e.Index)
}

func (*UndeclaredIndexError) structural() {}

// MissingConstantError reports a named constant that is needed to resolve a
// symbolic bound or dimension but has no binding. This is a configuration
// error, not a structural one: the kernel may be valid under different
// bindings.
type MissingConstantError struct {
	Name string
}

func (e *MissingConstantError) Error() string {
	return fmt.Sprintf("constant %q is not bound to a value", e.Name)
}
