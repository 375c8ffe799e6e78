// jsonv re-prints and queries JSON, JSONC and YAML documents through the
// derive value tree. Member order and repeated keys survive a round trip;
// lookups through repeated keys take the last occurrence.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/zoobzio/derive"
	"github.com/zoobzio/derive/json"
	"github.com/zoobzio/derive/yaml"
)

// errUsage marks errors caused by bad invocation.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printHelp(stderr)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	switch args[0] {
	case "fmt":
		return runFmt(args[1:], stdin, stdout, stderr)
	case "get":
		return runGet(args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		printHelp(stdout)
		return nil
	}
	printHelp(stderr)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

// ioFlags are the input and output options shared by every command.
type ioFlags struct {
	from   string
	to     string
	file   string
	indent int
}

func (f *ioFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.from, "from", "json", "input format: json, jsonc or yaml")
	flagSet.StringVar(&f.to, "to", "json", "output format: json or yaml")
	flagSet.StringVarP(&f.file, "file", "f", "", "read input from this file instead of stdin")
	flagSet.IntVar(&f.indent, "indent", 0, "indent JSON output by this many spaces")
}

func (f *ioFlags) input() (derive.Format, error) {
	switch f.from {
	case "json":
		return json.New(), nil
	case "jsonc":
		return json.NewJSONC(), nil
	case "yaml":
		return yaml.New(), nil
	}
	return nil, fmt.Errorf("%w: unknown input format %q (supported: json, jsonc, yaml)", errUsage, f.from)
}

func (f *ioFlags) output() (derive.Format, error) {
	switch f.to {
	case "json":
		if f.indent < 0 {
			return nil, fmt.Errorf("%w: --indent must not be negative", errUsage)
		}
		if f.indent > 0 {
			return json.NewIndent(strings.Repeat(" ", f.indent)), nil
		}
		return json.New(), nil
	case "yaml":
		return yaml.New(), nil
	}
	return nil, fmt.Errorf("%w: unknown output format %q (supported: json, yaml)", errUsage, f.to)
}

func (f *ioFlags) read(stdin io.Reader) (derive.Value, error) {
	in, err := f.input()
	if err != nil {
		return derive.Value{}, err
	}
	var data []byte
	if f.file != "" {
		data, err = os.ReadFile(f.file)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return derive.Value{}, fmt.Errorf("reading input: %w", err)
	}
	v, err := in.Parse(data)
	if err != nil {
		return derive.Value{}, fmt.Errorf("parsing %s input: %w", f.from, err)
	}
	return v, nil
}

func (f *ioFlags) write(stdout io.Writer, v derive.Value) error {
	out, err := f.output()
	if err != nil {
		return err
	}
	data, err := out.Format(v)
	if err != nil {
		return fmt.Errorf("formatting %s output: %w", f.to, err)
	}
	if _, err := stdout.Write(data); err != nil {
		return err
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		_, err = io.WriteString(stdout, "\n")
	}
	return err
}

func parseFlags(name string, flags *ioFlags, args []string, stderr io.Writer) ([]string, bool, error) {
	flagSet := pflag.NewFlagSet("jsonv "+name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flags.add(flagSet)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: %v", errUsage, err)
	}
	return flagSet.Args(), false, nil
}

func runFmt(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var flags ioFlags
	rest, help, err := parseFlags("fmt", &flags, args, stderr)
	if err != nil || help {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("%w: unexpected argument: %s", errUsage, rest[0])
	}

	v, err := flags.read(stdin)
	if err != nil {
		return err
	}
	return flags.write(stdout, v)
}

func runGet(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var flags ioFlags
	path, help, err := parseFlags("get", &flags, args, stderr)
	if err != nil || help {
		return err
	}

	v, err := flags.read(stdin)
	if err != nil {
		return err
	}
	found, err := walk(v, path)
	if err != nil {
		return err
	}
	return flags.write(stdout, found)
}

// walk follows path through v. Each step is an object key or, for arrays, a
// zero-based index.
func walk(v derive.Value, path []string) (derive.Value, error) {
	for i, step := range path {
		switch v.Kind() {
		case derive.KindObject:
			next, ok := v.Lookup(step)
			if !ok {
				return derive.Value{}, fmt.Errorf("%s: no member %q", strings.Join(path[:i+1], "."), step)
			}
			v = next
		case derive.KindArray:
			n, err := strconv.Atoi(step)
			if err != nil || n < 0 || n >= v.Len() {
				return derive.Value{}, fmt.Errorf("%s: index %q out of range (length %d)", strings.Join(path[:i+1], "."), step, v.Len())
			}
			v = v.Items()[n]
		default:
			return derive.Value{}, fmt.Errorf("%s: cannot index %s", strings.Join(path[:i+1], "."), v.Kind())
		}
	}
	return v, nil
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `jsonv re-prints and queries JSON documents, keeping member order.

Usage:
  jsonv fmt [flags]
  jsonv get [flags] <key|index>...

Examples:
  # Convert a JSONC config to indented JSON
  jsonv fmt --from jsonc --indent 2 -f settings.jsonc

  # Read one value out of a YAML document
  jsonv get --from yaml -f deploy.yaml spec replicas

Flags:
  --from string   input format: json, jsonc or yaml (default "json")
  --to string     output format: json or yaml (default "json")
  -f, --file      read input from this file instead of stdin
  --indent int    indent JSON output by this many spaces
`)
}
