package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/alexhholmes/teric/internal/codegen"
	"github.com/alexhholmes/teric/internal/config"
	"github.com/alexhholmes/teric/internal/document"
	"github.com/alexhholmes/teric/internal/dump"
	"github.com/alexhholmes/teric/internal/parser"
	"github.com/alexhholmes/teric/internal/serialize"
	"github.com/alexhholmes/teric/internal/view"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML configuration file")
		schemaFile = flag.String("schema", "", "Go source with @teric annotated types")
		root       = flag.String("root", "", "Root type (default: the type annotated with root)")
		dataFile   = flag.String("data", "", "JSON or YAML instance document")
		blobFile   = flag.String("blob", "", "Write the serialized blob to this file")
		headerFile = flag.String("header", "", "Write the C header to this file")
		allowUnset = flag.Bool("allow-unset", false, "Write unset pointers as zero instead of failing")
		dumpTree   = flag.Bool("dump", false, "Print the blob read back as a tree")
		noColor    = flag.Bool("no-color", false, "Disable colored -dump output")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "schema":
			cfg.Schema = *schemaFile
		case "root":
			cfg.Root = *root
		case "data":
			cfg.Data = *dataFile
		case "blob":
			cfg.Output.Blob = *blobFile
		case "header":
			cfg.Output.Header = *headerFile
		case "allow-unset":
			cfg.Pointers.AllowUnset = *allowUnset
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Usage: teric -schema <types.go> [-root Type] [-data doc.yaml -blob out.bin] [-header out.h]")
		fmt.Fprintln(os.Stderr, "       teric -config teric.yaml [-dump]")
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(2)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	serialize.SetLogger(logger.Named("serialize"))
	codegen.SetLogger(logger.Named("codegen"))
	document.SetLogger(logger.Named("document"))

	color := !*noColor && term.IsTerminal(int(os.Stdout.Fd()))
	os.Exit(exitCode(logger, run(cfg, logger, *dumpTree, color)))
}

// exitCode reports err and flushes the logger, since os.Exit skips
// deferred calls
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("teric failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger, dumpTree, color bool) error {
	// Parse schema
	pkg, err := parser.LoadFile(cfg.Schema)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	root, err := pkg.RootStruct(cfg.Root)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	logger.Info("schema loaded",
		zap.String("file", cfg.Schema),
		zap.String("root", root.Name()),
		zap.Int("structs", len(pkg.Order)),
	)

	if cfg.Output.Header != "" {
		header, err := codegen.NewGenerator(cfg.HeaderOptions()).Generate(root)
		if err != nil {
			return fmt.Errorf("header: %w", err)
		}
		if err := os.WriteFile(cfg.Output.Header, []byte(header), 0o644); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		logger.Info("header written", zap.String("file", cfg.Output.Header), zap.Int("bytes", len(header)))
	}

	if cfg.Data == "" {
		return nil
	}

	// Load and serialize the instance document
	data, err := os.ReadFile(cfg.Data)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	format, err := document.FormatOf(cfg.Data)
	if err != nil {
		return err
	}
	inst, err := document.Load(data, format, root)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	blob, stats, err := serialize.New(cfg.SerializeOptions()...).SerializeStats(inst)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if cfg.Output.Blob != "" {
		if err := os.WriteFile(cfg.Output.Blob, blob, 0o644); err != nil {
			return fmt.Errorf("write blob: %w", err)
		}
		logger.Info("blob written",
			zap.String("file", cfg.Output.Blob),
			zap.Int("bytes", stats.Bytes),
			zap.Int("structs", stats.Structs),
			zap.Int("pointers", stats.Pointers),
		)
	}

	if dumpTree {
		decoded, err := view.Decode(blob, root)
		if err != nil {
			return fmt.Errorf("read back: %w", err)
		}
		return dump.Fprint(os.Stdout, decoded, dump.Options{NoColor: !color})
	}
	return nil
}
