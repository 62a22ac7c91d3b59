// bldms-format lays out a fresh bldms backing image.
//
// Usage:
//
//	bldms-format [flags] <image-path>
//
// Flags:
//
//	-n, --num-blocks    Number of data blocks (default: 64)
//	-c, --config        Optional JSONC config file; its max_blocks bounds -n
//	-f, --force         Overwrite an existing image
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"bldms.dev/bldms/internal/cliconfig"
	"bldms.dev/bldms/pkg/bldms"
	"bldms.dev/bldms/pkg/bldmsfmt"
	"bldms.dev/bldms/pkg/fs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("bldms-format", pflag.ContinueOnError)

	numBlocks := flags.Uint64P("num-blocks", "n", 64, "number of data blocks")
	configPath := flags.StringP("config", "c", "", "JSONC config file whose max_blocks bounds --num-blocks")
	force := flags.BoolP("force", "f", false, "overwrite an existing image")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bldms-format [flags] <image-path>\n\nFlags:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() < 1 {
		flags.Usage()
		return errors.New("missing image path")
	}

	path := flags.Arg(0)
	fsys := fs.NewReal()

	if !*force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -f to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	cfg, err := cliconfig.Load(*configPath)
	if err != nil {
		return err
	}

	if cfg.MaxBlocks > 0 && *numBlocks > uint64(cfg.MaxBlocks) {
		return fmt.Errorf("num-blocks %d exceeds config max_blocks %d", *numBlocks, cfg.MaxBlocks)
	}

	if err := bldmsfmt.Format(fsys, path, bldmsfmt.Options{NumBlocks: *numBlocks}); err != nil {
		return fmt.Errorf("formatting %s: %w", path, err)
	}

	fmt.Printf("formatted %s: %d data blocks (%d bytes)\n", path, *numBlocks, (2+*numBlocks)*bldms.BlockSize)

	return nil
}
