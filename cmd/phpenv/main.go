// phpenv inspects the runtime configuration of a project and manages its
// compiled module cache.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chazu/phpenv/env"
	"github.com/chazu/phpenv/manifest"
	"github.com/chazu/phpenv/modcache"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	dir := flag.String("dir", ".", "Project directory (searched upward for "+manifest.FileName+")")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: phpenv [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  config             Print the effective configuration\n")
		fmt.Fprintf(os.Stderr, "  cache-ls           List cached modules\n")
		fmt.Fprintf(os.Stderr, "  cache-rm <name>    Remove one cached module\n")
		fmt.Fprintf(os.Stderr, "  cache-purge        Remove every cached module\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found in %s or its parents\n", manifest.FileName, *dir)
		os.Exit(1)
	}

	if err := run(os.Stdout, m, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, m *manifest.Manifest, cmd string, args []string) error {
	switch cmd {
	case "config":
		return printConfig(w, m)
	case "cache-ls":
		return withCache(m, func(s *modcache.Store) error { return listCache(w, s) })
	case "cache-rm":
		if len(args) != 1 {
			return errors.New("cache-rm takes exactly one module name")
		}
		return withCache(m, func(s *modcache.Store) error {
			if err := s.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(w, "removed %s\n", args[0])
			return nil
		})
	case "cache-purge":
		return withCache(m, func(s *modcache.Store) error {
			n, err := s.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "purged %d module(s)\n", n)
			return nil
		})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func withCache(m *manifest.Manifest, fn func(*modcache.Store) error) error {
	s, err := m.OpenCache()
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("module cache is disabled in %s", manifest.FileName)
	}
	defer s.Close()
	return fn(s)
}

// printConfig builds a context the way an embedder would and reports
// what a script running in it would observe.
func printConfig(w io.Writer, m *manifest.Manifest) error {
	c := env.New(env.NewScope(m.ScopeOptions()...), w)
	defer c.Shutdown()

	name := m.Project.Name
	if name == "" {
		name = "(unnamed)"
	}
	c.Echo(fmt.Sprintf("project:         %s %s\n", name, m.Project.Version))
	c.Echo(fmt.Sprintf("manifest dir:    %s\n", m.Dir))
	c.Echo(fmt.Sprintf("error_reporting: %d\n", c.ErrorFlags()))
	c.Echo(fmt.Sprintf("include_path:    %s\n", strings.Join(c.IncludePaths(), string(os.PathListSeparator))))
	if m.Cache.Enabled {
		c.Echo(fmt.Sprintf("module cache:    %s\n", m.CachePath()))
	} else {
		c.Echo("module cache:    disabled\n")
	}

	values := c.ConfigValues("", true)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		c.Echo("\n[ini]\n")
	}
	for _, k := range keys {
		c.Echo(fmt.Sprintf("%s = %q\n", k, values[k]))
	}
	return nil
}

func listCache(w io.Writer, s *modcache.Store) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "module cache is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%-40s %8d  %x  %s\n", e.Name, e.Size, shortDigest(e.SourceDigest), e.StoredAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func shortDigest(d []byte) []byte {
	if len(d) > 6 {
		return d[:6]
	}
	return d
}
