// Package cmd implements the smile command line: one flat command that
// drives the whole pipeline (lex, parse, compile, run), with flags to stop
// after parsing, print raw forms, predeclare globals, and loop over stdin
// (spec.md 6).
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/smile-lang/smile/internal/bytecode"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/printer"
	"github.com/smile-lang/smile/internal/runtime"
	"github.com/smile-lang/smile/internal/symbol"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Exit codes (spec.md 6).
const (
	exitOK         = 0
	exitError      = 1
	exitBreakpoint = 2
	exitBadUsage   = -1
)

var (
	evalExprs        []string
	checkOnly        bool
	printRaw         bool
	defines          []string
	loopStdin        bool
	loopPrint        bool
	printResult      bool
	quiet            bool
	verbose          bool
	warningsAsErrors bool
	disasm           bool
)

var rootCmd = &cobra.Command{
	Use:   "smile [flags] [program.sm [args...]]",
	Short: "The Smile programming language",
	Long: `smile runs Smile programs: a dynamically-typed, S-expression-based
language with a Lisp-like homoiconic core and an extensible surface syntax
defined by user-declarable grammar rules.

Examples:
  # Run a script file
  smile program.sm

  # Evaluate inline code
  smile -e "1 + 2" -o

  # Parse only and print the raw form
  smile -r program.sm

  # Predeclare a global and loop over stdin
  smile -D limit=10 -n -e "..." `,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// Execute runs the root command, translating failures to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitBadUsage)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	flags := rootCmd.Flags()
	flags.StringArrayVarP(&evalExprs, "eval", "e", nil, "evaluate inline code (may repeat)")
	flags.BoolVarP(&checkOnly, "check", "c", false, "parse only, reporting errors without running")
	flags.BoolVarP(&printRaw, "raw", "r", false, "print the parsed raw form")
	flags.StringArrayVarP(&defines, "define", "D", nil, "predeclare a global from a literal (name=value, may repeat)")
	flags.BoolVarP(&loopStdin, "loop", "n", false, "wrap the script in a read loop over stdin")
	flags.BoolVarP(&loopPrint, "loop-print", "p", false, "as -n, printing each line before evaluating")
	flags.BoolVarP(&printResult, "print", "o", false, "print the result of the last expression")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&warningsAsErrors, "warnings-as-errors", false, "treat warnings as errors")
	flags.BoolVar(&disasm, "disasm", false, "print the compiled bytecode listing instead of running")
}

func run(_ *cobra.Command, args []string) error {
	var source, filename string
	switch {
	case len(evalExprs) > 0:
		source = strings.Join(evalExprs, "\n")
		filename = "<eval>"
	case len(args) >= 1:
		filename = args[0]
		content, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filename, err)
		}
		source = string(content)
	default:
		return fmt.Errorf("provide a program file or inline code with -e")
	}

	env := runtime.NewEnvironment(runtime.WithTracing(verbose))
	for _, def := range defines {
		if err := applyDefine(env, def); err != nil {
			return err
		}
	}
	scriptArgs := object.Null
	if len(args) > 1 {
		var elems []object.Value
		for _, a := range args[1:] {
			elems = append(elems, object.Str(a))
		}
		scriptArgs = object.List(elems...)
	}
	env.SetGlobalVariable("$args", scriptArgs)

	if checkOnly || printRaw {
		raw, diags := env.Parse(source, filename)
		if diags.HasErrors(warningsAsErrors) {
			fmt.Fprint(os.Stderr, diags.FormatAll(true))
			os.Exit(exitError)
		}
		if !quiet && diags.Len() > 0 {
			fmt.Fprint(os.Stderr, diags.FormatAll(true))
		}
		if printRaw {
			fmt.Println(printer.New(env.Symbols).Print(raw))
		}
		os.Exit(exitOK)
	}

	if disasm {
		raw, diags := env.Parse(source, filename)
		if diags.HasErrors(warningsAsErrors) {
			fmt.Fprint(os.Stderr, diags.FormatAll(true))
			os.Exit(exitError)
		}
		info, cdiags := env.Compile(raw, "<main>")
		if cdiags.HasErrors(warningsAsErrors) {
			fmt.Fprint(os.Stderr, cdiags.FormatAll(true))
			os.Exit(exitError)
		}
		bytecode.NewDisassembler(info, env.Symbols, os.Stdout).Disassemble()
		os.Exit(exitOK)
	}

	if loopStdin || loopPrint {
		return runLoop(env, source, filename)
	}

	code := evalOnce(env, source, filename)
	os.Exit(code)
	return nil
}

// evalOnce runs one source unit and reports diagnostics, returning the
// process exit code.
func evalOnce(env *runtime.Environment, source, filename string) int {
	out := env.Eval(source, filename)

	if out.ParseMessages.Len() > 0 {
		if out.ParseMessages.HasErrors(warningsAsErrors) {
			fmt.Fprint(os.Stderr, out.ParseMessages.FormatAll(true))
			return exitError
		}
		if !quiet {
			fmt.Fprint(os.Stderr, out.ParseMessages.FormatAll(true))
		}
	}
	if out.CompileMessages.Len() > 0 {
		if out.CompileMessages.HasErrors(warningsAsErrors) {
			fmt.Fprint(os.Stderr, out.CompileMessages.FormatAll(true))
			return exitError
		}
		if !quiet {
			fmt.Fprint(os.Stderr, out.CompileMessages.FormatAll(true))
		}
	}

	switch out.Result.Kind {
	case bytecode.ResultException:
		printException(env, out.Result.Exception)
		return exitError
	case bytecode.ResultBreak:
		if !quiet {
			fmt.Fprintln(os.Stderr, "stopped at breakpoint")
		}
		return exitBreakpoint
	}

	if printResult {
		fmt.Println(printer.New(env.Symbols).Print(out.Result.Value))
	}
	return exitOK
}

// runLoop implements -n/-p: evaluate the script once per stdin line, the
// current line bound to the global $_ .
func runLoop(env *runtime.Environment, source, filename string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if loopPrint {
			fmt.Println(line)
		}
		env.SetGlobalVariable("$_", object.Str(line))
		if code := evalOnce(env, source, filename); code != exitOK {
			os.Exit(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	os.Exit(exitOK)
	return nil
}

func printException(env *runtime.Environment, exc object.Value) {
	if exc.Kind != object.KindUserObject {
		fmt.Fprintf(os.Stderr, "uncaught exception\n")
		return
	}
	obj := exc.Data.(*object.UserObject)
	kind, _ := obj.Get(env.Known.ExcKind)
	msg, _ := obj.Get(env.Known.ExcMessage)

	kindName := "unknown-error"
	if kind.Kind == object.KindSymbol {
		kindName = env.Symbols.Name(kind.Data.(symbol.Symbol))
	}
	fmt.Fprintf(os.Stderr, "uncaught %s: %s\n", kindName, msg.String())

	if trace, ok := obj.Get(env.Known.ExcStackTrace); ok && trace.Kind == object.KindList {
		for cur := trace; cur.Kind == object.KindList; cur = cur.Data.(*object.Cell).Tail {
			fmt.Fprintf(os.Stderr, "  at %s\n", cur.Data.(*object.Cell).Head.String())
		}
	}
}

// applyDefine parses a -D name=value pair; the value is a literal:
// integer, real, quoted string, true, false, or null.
func applyDefine(env *runtime.Environment, def string) error {
	name, raw, found := strings.Cut(def, "=")
	if !found || name == "" {
		return fmt.Errorf("-D needs name=value, got %q", def)
	}
	v, err := parseLiteral(raw)
	if err != nil {
		return fmt.Errorf("-D %s: %w", name, err)
	}
	env.SetGlobalVariable(name, v)
	return nil
}

func parseLiteral(raw string) (object.Value, error) {
	switch raw {
	case "true":
		return object.Bool(true), nil
	case "false":
		return object.Bool(false), nil
	case "null", "":
		return object.Null, nil
	}
	if strings.HasPrefix(raw, "\"") && strings.HasSuffix(raw, "\"") && len(raw) >= 2 {
		return object.Str(raw[1 : len(raw)-1]), nil
	}
	if n, err := strconv.ParseInt(raw, 0, 64); err == nil {
		if n >= -(1<<31) && n < 1<<31 {
			return object.Int32(int32(n)), nil
		}
		return object.Int64(n), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return object.Real64(f), nil
	}
	return object.Str(raw), nil
}
