package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	"github.com/jul-sh/clipkitty"
	"github.com/jul-sh/clipkitty/store"
	"github.com/jul-sh/clipkitty/util"
)

var version string

type options struct {
	DataDir string `long:"data-dir" description:"Engine directory (default: ~/.local/share/clipkitty)" value-name:"dir"`
	Config  string `long:"config" description:"YAML config file" value-name:"path"`

	Search string `short:"s" long:"search" description:"Run one search and print the results" value-name:"query"`
	Filter string `long:"filter" description:"Restrict search to one kind (text, image, link, color, file)" value-name:"kind"`
	List   bool   `short:"l" long:"list" description:"List recent history"`
	Delete int64  `long:"delete" description:"Delete one item by id" value-name:"id"`
	Clear  bool   `long:"clear" description:"Delete the entire history"`
	Prune  int64  `long:"prune" description:"Prune the store down to the given byte budget" value-name:"bytes"`
	Size   bool   `long:"size" description:"Print the database size in bytes"`

	Debug   bool `long:"debug" description:"Dump hydrated items for inspection"`
	Help    bool `long:"help" description:"Show this help"`
	Version bool `long:"version" description:"Show this version"`
}

// Return parsed options; exits on --help/--version like the other tools do.
func parseOptions(args []string) *options {
	var opts options
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[option...]"
	if _, err := parser.ParseArgs(args); err != nil {
		log.Fatal(err)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}
	return &opts
}

func main() {
	util.InitSlog()
	opts := parseOptions(os.Args[1:])

	fileCfg, err := clipkitty.ParseConfigFile(opts.Config)
	if err != nil {
		log.Fatal(err)
	}

	dir := opts.DataDir
	if dir == "" {
		dir = fileCfg.DataDir
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		dir = filepath.Join(home, ".local", "share", "clipkitty")
	}

	engine, err := clipkitty.Open(dir, fileCfg.EngineConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	switch {
	case opts.Search != "" || opts.List:
		runSearch(ctx, engine, opts)
	case opts.Delete != 0:
		if err := engine.DeleteItem(ctx, opts.Delete); err != nil {
			log.Fatal(err)
		}
	case opts.Clear:
		if err := engine.Clear(ctx); err != nil {
			log.Fatal(err)
		}
	case opts.Prune != 0:
		removed, err := engine.PruneToSize(ctx, opts.Prune, 0.8)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d bytes removed\n", removed)
	case opts.Size:
		size, err := engine.DatabaseSize(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(size)
	default:
		runWatch(ctx, engine)
	}
}

func runSearch(ctx context.Context, engine *clipkitty.Engine, opts *options) {
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		log.Fatal(err)
	}

	result, err := engine.Search(ctx, opts.Search, filter)
	if err != nil {
		log.Fatal(err)
	}

	if opts.Debug {
		ids := make([]int64, 0, len(result.Matches))
		for _, m := range result.Matches {
			ids = append(ids, m.ID)
		}
		items, err := engine.FetchByIDs(ctx, ids)
		if err != nil {
			log.Fatal(err)
		}
		pp.Println(items)
		return
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	for _, m := range result.Matches {
		if interactive {
			fmt.Printf("%6d  %s\n", m.ID, m.Snippet)
		} else {
			fmt.Printf("%d\t%s\n", m.ID, m.Snippet)
		}
	}
}

func runWatch(ctx context.Context, engine *clipkitty.Engine) {
	pb, err := newExecPasteboard()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := engine.NewPipeline(pb, nil)
	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}

func parseFilter(name string) (store.Kind, error) {
	switch name {
	case "":
		return store.KindAny, nil
	case "text":
		return store.KindText, nil
	case "image":
		return store.KindImage, nil
	case "link":
		return store.KindLink, nil
	case "color":
		return store.KindColor, nil
	case "file":
		return store.KindFile, nil
	}
	return store.KindAny, fmt.Errorf("unknown kind %q", name)
}
