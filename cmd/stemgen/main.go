// stemgen writes a synthetic detector block stream, for pipeline demos
// and test fixtures. Image numbers run 1..blocks*images so the stream
// fills a rows x columns output grid from slot one upward.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/visiona/stemd/internal/stream"
	"github.com/visiona/stemd/internal/types"
)

func main() {
	out := flag.String("out", "stream.bin", "Output file")
	blocks := flag.Int("blocks", 16, "Number of blocks")
	images := flag.Int("images", 4, "Images per block")
	rows := flag.Int("rows", 64, "Detector rows")
	columns := flag.Int("columns", 64, "Detector columns")
	seed := flag.Int64("seed", 1, "Sample RNG seed")
	sentinel := flag.Bool("sentinel", false, "End with an explicit version-0 sentinel block")
	compress := flag.Bool("zstd", false, "Compress the stream with zstd")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	f, err := os.Create(*out)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}

	var w io.Writer = f
	var enc *zstd.Encoder
	if *compress {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			slog.Error("failed to create zstd writer", "error", err)
			os.Exit(1)
		}
		w = enc
	}

	rng := rand.New(rand.NewSource(*seed))
	pixels := (*rows) * (*columns)
	number := uint32(1)

	for b := 0; b < *blocks; b++ {
		h := types.Header{
			ImagesInBlock: uint32(*images),
			Rows:          uint32(*rows),
			Columns:       uint32(*columns),
			Version:       1,
			Timestamp:     uint32(b),
			ImageNumbers:  make([]uint32, *images),
		}
		for i := range h.ImageNumbers {
			h.ImageNumbers[i] = number
			number++
		}

		block := types.Block{Header: h, Data: make([]uint16, pixels*(*images))}
		for i := range block.Data {
			block.Data[i] = uint16(rng.Intn(1 << 12)) // 12-bit detector counts
		}

		if err := stream.WriteBlock(w, block); err != nil {
			slog.Error("failed to write block", "error", err)
			os.Exit(1)
		}
	}

	if *sentinel {
		if err := stream.WriteSentinel(w); err != nil {
			slog.Error("failed to write sentinel", "error", err)
			os.Exit(1)
		}
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			slog.Error("failed to flush zstd stream", "error", err)
			os.Exit(1)
		}
	}
	if err := f.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		os.Exit(1)
	}

	slog.Info("stream written",
		"path", *out,
		"blocks", *blocks,
		"images", (*blocks)*(*images),
		"grid", fmt.Sprintf("%dx%d", *rows, *columns),
		"compressed", *compress,
	)
}
