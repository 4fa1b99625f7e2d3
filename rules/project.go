//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// EnhancedErrors keeps errors flowing through internal/errors so they carry
// a component and category and reach telemetry.
//
//	errors.New("device busy")               // standard library
//	errors.Newf("device busy").Component("hal").Category(...).Build()
func EnhancedErrors(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") && !m.File().PkgPath.Matches(`internal/errors$`)).
		Report("use internal/errors: errors.Newf($msg).Component(...).Category(...).Build()")
}

// LoggerErrorField keeps errors in the dedicated field so they are scrubbed.
func LoggerErrorField(m dsl.Matcher) {
	m.Match(`logger.Any("error", $err)`, `logger.String("error", $err.Error())`).
		Where(m["err"].Type.Implements("error")).
		Report("use logger.Error($err)").
		Suggest("logger.Error($err)")
}

// NoPrintInLibraries catches stray prints outside cmd/ and main.
func NoPrintInLibraries(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the package logger instead of printing to stdout")
}
