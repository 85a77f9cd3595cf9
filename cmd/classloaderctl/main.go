// Command classloaderctl loads a compiled WASM plugin library, drives its
// registration and instantiation lifecycle, and prints the result. It is a
// thin driver over the classloader/library/catalog/wasmplatform packages,
// replacing the teacher's crypto-gated cmd/harness with a CLI that exercises
// the plugin lifecycle directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/classloader"
	"github.com/joncooperworks/classloader/library"
	"github.com/joncooperworks/classloader/wasmplatform"
)

func main() {
	var (
		libraryPath = flag.String("library", "", "Path to a compiled WASM plugin library (required)")
		action      = flag.String("action", "enumerate", "Operation to perform: enumerate | create | debug")
		className   = flag.String("class", "", "Class name to instantiate (required for -action=create)")
		argsJSON    = flag.String("args", "{}", "JSON arguments passed to Execute when -action=create")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *libraryPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -library is required\n")
		os.Exit(1)
	}
	if *action == "create" && *className == "" {
		fmt.Fprintf(os.Stderr, "Error: -class is required for -action=create\n")
		os.Exit(1)
	}

	cat := catalog.Global()
	regCtx := catalog.GlobalContext()
	regCtx.SetLogger(logger)
	cat.SetLogger(logger)
	reg := library.Global()
	reg.SetLogger(logger)

	backend, err := library.ResolveBackend("wasm")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if wb, ok := backend.(*wasmplatform.Backend); ok {
		wb.SetLogger(logger)
	}

	loader, err := classloader.NewFromFormat("wasm", reg, *libraryPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing loader: %v\n", err)
		os.Exit(1)
	}
	loader.SetLogger(logger)

	ctx := context.Background()
	if err := loader.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading library %q: %v\n", *libraryPath, err)
		os.Exit(1)
	}
	defer loader.Close(ctx)

	switch *action {
	case "enumerate":
		names := classloader.Enumerate[classloader.Plugin](loader)
		out, _ := json.MarshalIndent(names, "", "  ")
		fmt.Println(string(out))

	case "debug":
		fmt.Println(cat.DebugString())

	case "create":
		inst, err := classloader.CreateShared[classloader.Plugin](ctx, loader, *className)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating class %q: %v\n", *className, err)
			os.Exit(1)
		}
		defer inst.Release(ctx)

		result, err := inst.Value().Execute(ctx, json.RawMessage(*argsJSON))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error executing class %q: %v\n", *className, err)
			os.Exit(1)
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown -action %q\n", *action)
		os.Exit(1)
	}
}
