// Package flagx lets several packages parse their own subset of os.Args
// without tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps only the flags named in allowed (and their values).
// A flag may be spelled with one or two dashes on the command line regardless
// of how it is listed in allowed.
//
// Recognized forms:
//
//	-c conf.json
//	--config=conf.json
//
// A token following an allowed flag is taken as its value unless it starts
// with a dash. The result is never nil.
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[bare(f)] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, found := strings.Cut(arg, "="); found {
			if _, ok := names[bare(name)]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := names[bare(arg)]; !ok {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

func bare(flagName string) string {
	return strings.TrimLeft(flagName, "-")
}

// ConfigPath extracts the JSON config file path given via -c or -config.
// Everything else in args is ignored. An empty string means no file.
func ConfigPath(args []string) string {
	var path string
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))
	return path
}
