package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

type cmdBench struct {
	connectOptions
	Iterations  int `long:"iterations" short:"n" default:"10000" description:"Statements per connection"`
	Concurrency int `long:"concurrency" default:"1" description:"Connections running in parallel"`
}

func (cmd *cmdBench) Execute([]string) error {
	logger := setupLogger()
	if cmd.Concurrency < 1 {
		cmd.Concurrency = 1
	}

	group, ctx := errgroup.WithContext(context.Background())
	start := time.Now()
	for i := 0; i < cmd.Concurrency; i++ {
		group.Go(func() error {
			return cmd.run(ctx)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := int64(cmd.Iterations) * int64(cmd.Concurrency)
	rate := float64(total) / elapsed.Seconds()
	fmt.Fprintf(os.Stdout, "%s statements in %s: %s/s, %s per statement\n",
		humanize.Comma(total), elapsed.Round(time.Millisecond),
		humanize.CommafWithDigits(rate, 1), (elapsed / time.Duration(max(total, 1))).String())
	logger.Debug("Benchmark complete", "target", cmd.Positional.Target, "concurrency", cmd.Concurrency)
	return nil
}

func (cmd *cmdBench) run(ctx context.Context) error {
	conn, err := cmd.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cur := conn.Cursor()
	for i := 0; i < cmd.Iterations; i++ {
		if err := cur.Execute(ctx, "SELECT 1"); err != nil {
			return err
		}
		if _, err := cur.FetchOne(); err != nil {
			return err
		}
	}
	return nil
}
