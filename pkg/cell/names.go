package cell

import "strings"

// Reserved cell names.
const (
	// SetupCellName is the fixed name of the implicit setup cell created
	// by the context-block factory.
	SetupCellName = "setup"

	// TopLevelCellPrefix marks cells synthesized from top-level
	// declarations. The prefix is not a valid Python identifier, so a
	// renamed declaration can never collide with a user cell name.
	TopLevelCellPrefix = "*"
)

// Test naming conventions recognized by the factories and the compiler.
const (
	testFunctionPrefix = "test_"
	testClassPrefix    = "Test"
	testNamePrefix     = "test"
)

// appModuleName is the module name under which a notebook runs as an
// imported app rather than a top-level script. Sources registered under
// it never receive an anchor, so internal paths do not leak into
// diagnostics.
const appModuleName = "cellforge_app"

// IsLocal reports whether a name is scoped purely to its defining cell by
// the underscore naming convention.
func IsLocal(name string) bool {
	return strings.HasPrefix(name, "_")
}
