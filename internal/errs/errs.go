// Package errs categorizes user-facing errors and renders them through the
// Redactor, mapping every category to a stable process exit code.
package errs

import (
	"fmt"
	"strings"

	"xchecker/internal/redact"
)

// Category is one of the fixed error taxonomy buckets. Every category maps
// 1:1 to an exit code.
type Category string

const (
	CategoryConfiguration   Category = "configuration"
	CategorySource          Category = "source"
	CategoryPhaseExecution  Category = "phase_execution"
	CategoryLLMIntegration  Category = "llm_integration"
	CategoryFileSystem      Category = "file_system"
	CategorySecurity        Category = "security"
	CategoryResource        Category = "resource"
	CategoryValidation      Category = "validation"
	CategoryConcurrency     Category = "concurrency"
	CategoryInternal        Category = "internal" // catch-all, exit code 1
)

// exitCodes maps each category to its process exit code.
var exitCodes = map[Category]int{
	CategoryConfiguration:  2,
	CategoryPhaseExecution: 3,
	CategoryLLMIntegration: 4,
	CategoryFileSystem:     5,
	CategorySecurity:       6,
	CategoryResource:       7,
	CategoryValidation:     8,
	CategoryConcurrency:    9,
	CategoryInternal:       1,
	CategorySource:         3, // Source failures surface as PhaseExecution at the exit-code layer
}

// ExitCode returns the process exit code for c, defaulting to 1 (Internal)
// for an unrecognized category.
func ExitCode(c Category) int {
	if code, ok := exitCodes[c]; ok {
		return code
	}
	return 1
}

// footerCategories get a fixed troubleshooting footer appended to their
// rendered report.
var footerCategories = map[Category]bool{
	CategoryConfiguration:  true,
	CategoryLLMIntegration: true,
	CategoryPhaseExecution: true,
	CategorySecurity:       true,
	CategoryFileSystem:     true,
}

const troubleshootingFooter = "If this persists, re-run with debug mode enabled and inspect the logs under .xchecker/logs/."

// Error is a categorized, user-facing error.
type Error struct {
	Category    Category
	UserMessage string
	Context     string
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Cause)
	}
	return e.UserMessage
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a categorized Error.
func New(category Category, userMessage string, context string, suggestions ...string) *Error {
	return &Error{Category: category, UserMessage: userMessage, Context: context, Suggestions: suggestions}
}

// Wrap builds a categorized Error around an underlying cause.
func Wrap(category Category, cause error, userMessage string, context string, suggestions ...string) *Error {
	return &Error{Category: category, UserMessage: userMessage, Context: context, Suggestions: suggestions, Cause: cause}
}

// Reporter renders categorized errors for display, passing every surface
// through a Redactor first.
type Reporter struct {
	r *redact.Redactor
}

// NewReporter builds a Reporter. redactor may be nil to use the package
// default.
func NewReporter(redactor *redact.Redactor) *Reporter {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Reporter{r: redactor}
}

// Render produces the human-readable report for err, redacting every field
// before composing the final string. If err is not an *Error, it is
// rendered as a bare Internal failure.
func (rep *Reporter) Render(err error) string {
	ce, ok := err.(*Error)
	if !ok {
		ce = &Error{Category: CategoryInternal, UserMessage: err.Error()}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "error [%s]: %s\n", ce.Category, rep.r.RedactString(ce.UserMessage))
	if ce.Context != "" {
		fmt.Fprintf(&b, "  context: %s\n", rep.r.RedactString(ce.Context))
	}
	for _, s := range ce.Suggestions {
		fmt.Fprintf(&b, "  suggestion: %s\n", rep.r.RedactString(s))
	}
	if footerCategories[ce.Category] {
		b.WriteString("  " + troubleshootingFooter + "\n")
	}
	return b.String()
}

// Exit returns the process exit code for err, treating a non-*Error as
// Internal (1).
func (rep *Reporter) Exit(err error) int {
	ce, ok := err.(*Error)
	if !ok {
		return ExitCode(CategoryInternal)
	}
	return ExitCode(ce.Category)
}
