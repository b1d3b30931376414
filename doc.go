/*
Package texttools collects the shared primitives that a family of
classic text-processing tools -- a screen editor, a stream editor, a
macro preprocessor -- all end up reimplementing separately: a gap
buffer with undo, a regular expression engine, and a macro expansion
core, plus the smaller pieces (byte buffers, stacked input streams, an
expression evaluator, a hash table) those three lean on.

None of the three headline subsystems is glued to the others at the
API level -- a caller wanting only regular expressions need not drag in
the macro processor -- but they are grounded in the same small set of
design choices, which this file writes down once rather than repeating
in each package doc comment.

Arenas over pointers

internal/gapbuf's undo log and internal/rx's NFA states are both
built as flat, indexed arenas rather than graphs of owning pointers.
A gap buffer's undo group is a run of edits over one growable buffer,
addressed by offset; an NFA's states live in internal/mem's paged
integer store, addressed by a small integer id; the one state most
recently freed by concatenation is handed out again by the next
allocation. This is the same
trade a bytecode interpreter makes for its heap: indices survive
reallocation and copy cheaply, where pointers do not survive a buffer
move. internal/mem began life as a bytecode VM's word memory in the
example this module is adapted from; here it addresses NFA states
instead, the arena discipline carrying over unchanged even though the
domain did not.

Streams that can be ungotten

internal/streamio is the input abstraction shared by the expression
evaluator (reading a word-tokenized expression) and the macro
processor (reading a live, possibly multi-file input stack); the
regular expression engine works on plain byte slices instead.
Its defining feature is pushback: any source can have bytes or whole
strings ungotten onto it, and a whole new source can be pushed in
front of the current one. The macro processor leans on this heavily --
a macro's expansion is pushed back onto the input and re-scanned
exactly like any other text, which is what lets a macro call appear
inside another macro's arguments and still expand in the right order.
Line tracking follows the same "bump the counter on the read after a
newline, not on the newline itself" rule throughout, so a line number
reported mid-token always names the line the token started on.

Errors are values, not exceptions

Every operation that can fail -- a malformed pattern, an unterminated
quote, signed overflow in an arithmetic expression, a builtin called
with the wrong argument count -- returns an error rather than raising
one. Two packages (expr, macro) each define a small typed error with a
Kind enum, so a caller that wants to distinguish "divide by zero" from
"syntax error" from "user overflow" can switch on it without string
matching; rx reports a malformed pattern as its own *rx.SyntaxError.
The one exception to plain synchronous error returns is
internal/panicerr, used at the top of Processor.Run the same way the
example this module adapts used
it at the top of its interpreter loop: to turn an internal panic into
a returned error at a single well-known boundary, not as a concurrency
primitive.

Growth policies are explicit, not implicit

internal/bytebuf's buffers double by a specific rule -- new capacity
is (capacity+requested)*2, and an overflow in that arithmetic fails
the write rather than silently wrapping or truncating -- because the
macro processor's diversions, wrap text and argument buffers all
need a growth policy whose failure mode is well defined at arbitrary
size, not Go's general-purpose slice growth. Where a growth policy's
exact shape does not matter (internal/rx's character-set slice), plain
append is used instead; the explicit doubling is reserved for the one
component the policy is actually specified against.

Package map

  internal/bytebuf  growable byte buffer, explicit doubling growth
  internal/streamio  stacked, pushback-capable input sources
  internal/gapbuf    gap buffer: insert/delete/move, grouped undo/redo
  internal/rx        regular expressions: NFA compile, search, replace
  internal/expr      arithmetic expression evaluator (shunting-yard)
  internal/symtab    hash table with chaining and pushdef/popdef history
  internal/macro     macro processor: tokenizer, builtins, diversions
  internal/mem       paged integer arena (backs rx's NFA states)
  internal/runeio    rune I/O and terminal control-character rendering
  internal/flushio   flushable io.Writer wrapping and fan-out
  internal/logio     leveled logger with output wrapping, for tracing
  internal/panicerr  panic/Goexit recovery at a process boundary

See each package's own doc comment for its operations and invariants.
*/
package texttools
