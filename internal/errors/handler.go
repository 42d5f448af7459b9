// Package errors provides the fatal error policy applied to failed
// synchronization primitives
package errors

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jzx17/condprobe/pkg/types"
)

// ExitAbort is the exit status used when a fatal error terminates the
// process, matching a shell's report of SIGABRT (128 + 6)
const ExitAbort = 134

// ErrorContext defines context information when a fatal error occurs
type ErrorContext struct {
	// Error that occurred
	Error error

	// Operation is the primitive operation that failed
	Operation string

	// Index is the thread record index, or types.NoIndex
	Index int

	// File and Line locate the call site of the failed operation
	File string
	Line int

	// Timestamp when the error occurred
	Timestamp time.Time

	// Metadata contains additional metadata information
	Metadata map[string]interface{}
}

// NewErrorContext creates a new error context
func NewErrorContext(err error, operation string, index int) *ErrorContext {
	return &ErrorContext{
		Error:     err,
		Operation: operation,
		Index:     index,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// WithCaller records the call site skip frames above the caller of WithCaller
func (ec *ErrorContext) WithCaller(skip int) *ErrorContext {
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		ec.File = file
		ec.Line = line
	}
	return ec
}

// Location returns "file:line" of the failed call, or "unknown"
func (ec *ErrorContext) Location() string {
	if ec.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(ec.File), ec.Line)
}

// String formats the context as a one-line diagnostic
func (ec *ErrorContext) String() string {
	if ec.Index == types.NoIndex {
		return fmt.Sprintf("%s failed at %s: %v", ec.Operation, ec.Location(), ec.Error)
	}
	return fmt.Sprintf("%s failed for thread %d at %s: %v", ec.Operation, ec.Index, ec.Location(), ec.Error)
}

// FatalError carries an ErrorContext through a panic
type FatalError struct {
	Context *ErrorContext
}

// Error implements the error interface
func (e *FatalError) Error() string {
	return "fatal: " + e.Context.String()
}

// Unwrap returns the underlying error
func (e *FatalError) Unwrap() error {
	return e.Context.Error
}

// FatalHandler decides how the process reacts to a failed primitive.
// HandleFatal is not expected to return; callers treat a return as a
// handler bug and panic.
type FatalHandler interface {
	// HandleFatal terminates the process or the calling goroutine
	HandleFatal(errCtx *ErrorContext)

	// Name returns the name of the handler
	Name() string
}

// AbortConfig contains configuration for the abort handler
type AbortConfig struct {
	// Logger receives the structured fatal record
	Logger *slog.Logger
	// Output receives the goroutine dump, defaults to os.Stderr
	Output io.Writer
	// Exit terminates the process, defaults to os.Exit
	Exit func(code int)
}

// AbortHandler logs the failure with every goroutine's stack and exits
// the process with ExitAbort. No cleanup runs.
type AbortHandler struct {
	name   string
	logger *slog.Logger
	output io.Writer
	exit   func(int)
}

// NewAbortHandler creates an abort handler
func NewAbortHandler(config *AbortConfig) *AbortHandler {
	handler := &AbortHandler{
		name:   "Abort",
		logger: slog.Default(),
		output: os.Stderr,
		exit:   os.Exit,
	}

	if config != nil {
		if config.Logger != nil {
			handler.logger = config.Logger
		}
		if config.Output != nil {
			handler.output = config.Output
		}
		if config.Exit != nil {
			handler.exit = config.Exit
		}
	}

	return handler
}

// HandleFatal implements the FatalHandler interface
func (h *AbortHandler) HandleFatal(errCtx *ErrorContext) {
	attrs := []any{
		slog.String("op", errCtx.Operation),
		slog.String("at", errCtx.Location()),
		slog.Any("error", errCtx.Error),
	}
	if errCtx.Index != types.NoIndex {
		attrs = append(attrs, slog.Int("thread", errCtx.Index))
	}
	for k, v := range errCtx.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	h.logger.Error("fatal synchronization error", attrs...)

	fmt.Fprintf(h.output, "%s\n\n%s\n", errCtx.String(), allStacks())

	h.exit(ExitAbort)
}

// allStacks returns the stacks of every goroutine, growing the buffer
// until the dump fits
func allStacks() []byte {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Name returns the handler name
func (h *AbortHandler) Name() string {
	return h.name
}

// PanicHandler panics with a *FatalError instead of exiting. It lets tests
// observe fatal paths on the calling goroutine.
type PanicHandler struct{}

// NewPanicHandler creates a panic handler
func NewPanicHandler() *PanicHandler {
	return &PanicHandler{}
}

// HandleFatal implements the FatalHandler interface
func (h *PanicHandler) HandleFatal(errCtx *ErrorContext) {
	panic(&FatalError{Context: errCtx})
}

// Name returns the handler name
func (h *PanicHandler) Name() string {
	return "Panic"
}
