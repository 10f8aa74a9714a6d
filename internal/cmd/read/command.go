// Package read implements the `zipstream read` subcommand: list, and optionally extract, the entries of a ZIP
// archive read from a local path or an s3://bucket/key URI.
package read

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/nguyengg/zipstream"
	"github.com/nguyengg/zipstream/internal"
	"github.com/nguyengg/zipstream/internal/cmd/awsconfig"
	"github.com/nguyengg/zipstream/s3reader"
)

// Command implements flags.Commander for `zipstream read`.
type Command struct {
	Extract string `short:"x" long:"extract" description:"directory to extract file entries into; if omitted, entries are only listed" value-name:"DIR"`
	Args    struct {
		Archive string `positional-arg-name:"archive" description:"local path or s3://bucket/key of the archive to read" required:"yes"`
	} `positional-args:"yes"`

	awsconfig.ConfigLoaderMixin
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	src, closeSrc, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	if c.Extract != "" {
		if err = os.MkdirAll(c.Extract, 0755); err != nil {
			return fmt.Errorf("create extract directory error: %w", err)
		}
	}

	r := zipstream.NewReader(src)
	count := 0
	rootFinder, rootDir, hasRoot := internal.NewZipRootDirFinder(), internal.RootDir(""), true

	for entry, err := range r.Entries(ctx) {
		if err != nil {
			return fmt.Errorf("read entry error: %w", err)
		}

		switch e := entry.(type) {
		case zipstream.DirectoryEntry:
			log.Printf("%s  <dir>", e.Name)
			if hasRoot {
				rootDir, hasRoot = rootFinder(e.Name)
			}
			if c.Extract != "" {
				if err = os.MkdirAll(rootDir.Join(c.Extract, e.Name), 0755); err != nil {
					return fmt.Errorf("create directory %q error: %w", e.Name, err)
				}
			}

		case zipstream.FileEntry:
			log.Printf("%s  %s  method=%d", e.Name, humanize.IBytes(e.UncompressedSize), e.Method)
			if hasRoot {
				rootDir, hasRoot = rootFinder(e.Name)
			}
			if c.Extract == "" {
				if err = e.Body.Autodrain(ctx); err != nil {
					return fmt.Errorf("drain %q error: %w", e.Name, err)
				}
				count++
				continue
			}

			if err = c.extract(ctx, e, rootDir); err != nil {
				return fmt.Errorf("extract %q error: %w", e.Name, err)
			}
		}

		count++
	}

	log.Printf("read %d entries", count)
	return nil
}

func (c *Command) extract(ctx context.Context, e zipstream.FileEntry, rootDir internal.RootDir) error {
	name := rootDir.Join(c.Extract, e.Name)
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}

	body, err := e.Body.Stream(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	bar := internal.DefaultBytes(int64(e.UncompressedSize), fmt.Sprintf("extracting %s", e.Name))
	defer bar.Close()

	_, err = internal.CopyWithContext(ctx, io.MultiWriter(f, bar), body)
	return err
}

// open returns an io.Reader over the archive named by c.Args.Archive and a func that releases any resource it
// opened (the local *os.File; a no-op for the S3-backed reader since s3reader.Reader holds no connection).
func (c *Command) open(ctx context.Context) (io.Reader, func(), error) {
	if !strings.HasPrefix(c.Args.Archive, "s3://") {
		f, err := os.Open(c.Args.Archive)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive error: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}

	bucket, key, err := internal.ParseS3URI(c.Args.Archive)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid archive URI: %w", err)
	}

	cfg, err := c.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config error: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return s3reader.NewReader(client, bucket, key), func() {}, nil
}
