// Command analyze submits image files to the analysis API and prints the
// unwrapped results as JSON lines.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/medimage-insight/pkg/client"
)

var (
	server      = flag.String("server", "http://localhost:8080", "Base URL of the analysis API")
	token       = flag.String("token", os.Getenv("MEDIMAGE_TOKEN"), "Session token (JWT or API key)")
	demo        = flag.Bool("demo", false, "Use the anonymous demo endpoint")
	concurrency = flag.Int("concurrency", 4, "Number of files submitted at once")
)

type line struct {
	File   string         `json:"file"`
	Result *client.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] image...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*server, *token)
	if *demo {
		c.Path = "/v1/demo/analyze"
	}

	files := flag.Args()
	out := make([]line, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for i, f := range files {
		g.Go(func() error {
			out[i] = submit(gctx, c, f)
			// a failed file is reported, not fatal
			return gctx.Err()
		})
	}
	err := g.Wait()

	enc := json.NewEncoder(os.Stdout)
	failed := false
	for _, l := range out {
		if l.File == "" {
			continue
		}
		if l.Error != "" {
			failed = true
		}
		if encErr := enc.Encode(l); encErr != nil {
			fmt.Fprintln(os.Stderr, encErr)
			os.Exit(1)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "interrupted:", err)
		os.Exit(130)
	}
	if failed {
		os.Exit(1)
	}
}

func submit(ctx context.Context, c *client.Client, path string) line {
	data, err := os.ReadFile(path)
	if err != nil {
		return line{File: path, Error: err.Error()}
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return line{File: path, Error: fmt.Sprintf("not an image: %s", mt.String())}
	}

	res, err := c.Analyze(ctx, base64.StdEncoding.EncodeToString(data), mt.String())
	if err != nil {
		return line{File: path, Error: err.Error()}
	}
	return line{File: path, Result: res}
}
