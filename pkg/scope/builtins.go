package scope

// pythonBuiltins lists names resolved by the host builtins namespace.
// A load of one of these is not a cross-cell reference unless the name is
// shadowed by a cell definition.
var pythonBuiltins = map[string]struct{}{
	"abs": {}, "aiter": {}, "all": {}, "anext": {}, "any": {}, "ascii": {},
	"bin": {}, "bool": {}, "breakpoint": {}, "bytearray": {}, "bytes": {},
	"callable": {}, "chr": {}, "classmethod": {}, "compile": {}, "complex": {},
	"copyright": {}, "credits": {}, "delattr": {}, "dict": {}, "dir": {},
	"divmod": {}, "enumerate": {}, "eval": {}, "exec": {}, "exit": {},
	"filter": {}, "float": {}, "format": {}, "frozenset": {}, "getattr": {},
	"globals": {}, "hasattr": {}, "hash": {}, "help": {}, "hex": {}, "id": {},
	"input": {}, "int": {}, "isinstance": {}, "issubclass": {}, "iter": {},
	"len": {}, "license": {}, "list": {}, "locals": {}, "map": {}, "max": {},
	"memoryview": {}, "min": {}, "next": {}, "object": {}, "oct": {},
	"open": {}, "ord": {}, "pow": {}, "print": {}, "property": {}, "quit": {},
	"range": {}, "repr": {}, "reversed": {}, "round": {}, "set": {},
	"setattr": {}, "slice": {}, "sorted": {}, "staticmethod": {}, "str": {},
	"sum": {}, "super": {}, "tuple": {}, "type": {}, "vars": {}, "zip": {},
	"ArithmeticError": {}, "AssertionError": {}, "AttributeError": {},
	"BaseException": {}, "BaseExceptionGroup": {}, "BlockingIOError": {},
	"BrokenPipeError": {}, "BufferError": {}, "BytesWarning": {},
	"ChildProcessError": {}, "ConnectionAbortedError": {},
	"ConnectionError": {}, "ConnectionRefusedError": {},
	"ConnectionResetError": {}, "DeprecationWarning": {}, "EOFError": {},
	"EncodingWarning": {}, "EnvironmentError": {}, "Exception": {},
	"ExceptionGroup": {}, "FileExistsError": {}, "FileNotFoundError": {},
	"FloatingPointError": {}, "FutureWarning": {}, "GeneratorExit": {},
	"IOError": {}, "ImportError": {}, "ImportWarning": {},
	"IndentationError": {}, "IndexError": {}, "InterruptedError": {},
	"IsADirectoryError": {}, "KeyError": {}, "KeyboardInterrupt": {},
	"LookupError": {}, "MemoryError": {}, "ModuleNotFoundError": {},
	"NameError": {}, "NotADirectoryError": {}, "NotImplementedError": {},
	"OSError": {}, "OverflowError": {}, "PendingDeprecationWarning": {},
	"PermissionError": {}, "ProcessLookupError": {}, "RecursionError": {},
	"ReferenceError": {}, "ResourceWarning": {}, "RuntimeError": {},
	"RuntimeWarning": {}, "StopAsyncIteration": {}, "StopIteration": {},
	"SyntaxError": {}, "SyntaxWarning": {}, "SystemError": {},
	"SystemExit": {}, "TabError": {}, "TimeoutError": {}, "TypeError": {},
	"UnboundLocalError": {}, "UnicodeDecodeError": {},
	"UnicodeEncodeError": {}, "UnicodeError": {},
	"UnicodeTranslateError": {}, "UnicodeWarning": {}, "UserWarning": {},
	"ValueError": {}, "Warning": {}, "ZeroDivisionError": {},
	"True": {}, "False": {}, "None": {}, "NotImplemented": {},
	"Ellipsis": {}, "__import__": {}, "__name__": {}, "__file__": {},
	"__doc__": {}, "__builtins__": {}, "__debug__": {},
}

// IsBuiltin reports whether name resolves in the host builtins namespace.
func IsBuiltin(name string) bool {
	_, ok := pythonBuiltins[name]

	return ok
}
