// Package write implements the `zipstream write` subcommand: walk local files and directories, deflate regular
// files, and stream a zipstream.Writer to a local file or an s3://bucket/key destination.
package write

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/klauspost/compress/flate"

	"github.com/nguyengg/zipstream"
	"github.com/nguyengg/zipstream/internal"
	"github.com/nguyengg/zipstream/internal/cmd/awsconfig"
	"github.com/nguyengg/zipstream/s3writer"
)

// Command implements flags.Commander for `zipstream write`.
type Command struct {
	Output string `short:"o" long:"output" description:"local path or s3://bucket/key of the archive to write" required:"yes" value-name:"ARCHIVE"`
	Args   struct {
		Paths []string `positional-arg-name:"path" description:"files or directories to add to the archive" required:"yes"`
	} `positional-args:"yes"`

	awsconfig.ConfigLoaderMixin
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	dst, closeDst, err := c.create(ctx)
	if err != nil {
		return err
	}

	n, err := countFiles(c.Args.Paths)
	if err != nil {
		_ = closeDst()
		return fmt.Errorf("count files error: %w", err)
	}

	w := zipstream.NewWriter(dst)
	count, i := 0, 0

	for _, path := range c.Args.Paths {
		base := filepath.Base(path)

		if err = filepath.Walk(path, func(name string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			entryName := filepath.ToSlash(filepath.Join(base, strings.TrimPrefix(name, path)))

			if fi.IsDir() {
				if name == path {
					return nil
				}
				return w.WriteEntry(ctx, zipstream.WriteDirectoryEntry{Name: entryName})
			}

			i++
			fileCtx := internal.WithPrefixLogger(ctx, internal.Prefix(i, n, flags.Filename(name)))
			return c.addFile(fileCtx, w, name, entryName)
		}); err != nil {
			_ = closeDst()
			return fmt.Errorf("walk %q error: %w", path, err)
		}

		count++
	}

	if err = w.Close(ctx); err != nil {
		_ = closeDst()
		return fmt.Errorf("close archive error: %w", err)
	}
	if err = closeDst(); err != nil {
		return fmt.Errorf("close destination error: %w", err)
	}

	log.Printf("wrote %d top-level paths to %s", count, c.Output)
	return nil
}

func (c *Command) addFile(ctx context.Context, w *zipstream.Writer, name, entryName string) error {
	prefix := internal.MustPrefix(ctx)

	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%sopen %q error: %w", prefix, name, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("%sread %q error: %w", prefix, name, err)
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("%screate deflate writer error: %w", prefix, err)
	}
	if _, err = fw.Write(raw); err != nil {
		return fmt.Errorf("%sdeflate %q error: %w", prefix, name, err)
	}
	if err = fw.Close(); err != nil {
		return fmt.Errorf("%sflush deflate writer error: %w", prefix, err)
	}

	internal.MustLogger(ctx).Printf("%s  %s -> %s", entryName, humanize.IBytes(uint64(len(raw))), humanize.IBytes(uint64(compressed.Len())))

	return w.WriteEntry(ctx, zipstream.WriteFileEntry{
		Name: entryName,
		Body: zipstream.DeflatedBody{
			UncompressedSize: uint64(len(raw)),
			CompressedSize:   uint64(compressed.Len()),
			CRC32:            crc32.ChecksumIEEE(raw),
			Reader:           bytes.NewReader(compressed.Bytes()),
		},
	})
}

// countFiles walks every path and returns the total number of regular files found, used to size the [i/n] prefix
// that each addFile call logs under.
func countFiles(paths []string) (n int, err error) {
	for _, path := range paths {
		if err = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				n++
			}
			return nil
		}); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// create returns the io.Writer that the archive will be streamed to, and a func that finalizes and releases it
// (closing the local *os.File, or completing the multipart upload for the S3-backed sink).
func (c *Command) create(ctx context.Context) (io.Writer, func() error, error) {
	if !strings.HasPrefix(c.Output, "s3://") {
		f, err := os.Create(c.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("create archive error: %w", err)
		}
		return f, f.Close, nil
	}

	bucket, key, err := internal.ParseS3URI(c.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid archive URI: %w", err)
	}

	cfg, err := c.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config error: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	sw, err := s3writer.New(ctx, client, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3writer.WithProgressLogger(log.Default(), 5*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("create s3 writer error: %w", err)
	}

	return sw, sw.Close, nil
}
