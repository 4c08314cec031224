package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

// RegisterBuiltins adds help, list, and (if includeTerminate) terminate to r.
// includeTerminate should be false on sandboxed/browser targets, where there
// is no host process to exit.
func RegisterBuiltins(r *Registry, includeTerminate bool) error {
	if err := r.Add(Entry{
		Name:             "help",
		ShortDescription: "describe one command by name",
		FullDescription:  "help <name> prints the full description of a single registered command.",
		Handler: HandlerFunc(func(args Args) (response.Response, error) {
			name := args["name"]
			if name == "" {
				if pos := args.Positional(); len(pos) > 0 {
					name = pos[0]
				}
			}
			e, ok := r.Lookup(name)
			if !ok {
				return response.Response{}, fmt.Errorf("help: no such command %q", name)
			}
			return response.String(e.FullDescription), nil
		}),
	}); err != nil {
		return err
	}

	if err := r.Add(Entry{
		Name:             "list",
		ShortDescription: "list all registered commands",
		FullDescription:  "list prints every registered command's name and short description.",
		Handler: HandlerFunc(func(Args) (response.Response, error) {
			var b strings.Builder
			for _, e := range r.List() {
				fmt.Fprintf(&b, "%-20s %s\n", e.Name, e.ShortDescription)
			}
			return response.String(b.String()), nil
		}),
	}); err != nil {
		return err
	}

	if includeTerminate {
		if err := r.Add(Entry{
			Name:             "terminate",
			ShortDescription: "exit the host process",
			FullDescription:  "terminate exits the host process with status 70 after a short delay, to let the reply flush first.",
			Handler: HandlerFunc(func(Args) (response.Response, error) {
				go func() {
					time.Sleep(50 * time.Millisecond)
					os.Exit(70)
				}()
				return response.String("terminating"), nil
			}),
		}); err != nil {
			return err
		}
	}

	return nil
}
