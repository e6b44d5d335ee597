// Command schedbench measures parallel batch throughput across worker
// counts: it runs the same sum-of-squares workload at each pool size
// and prints a comparison table.
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/meshforge/scheduler/core"
)

func main() {
	app := &cli.App{
		Name:  "schedbench",
		Usage: "benchmark parallel batch throughput across pool sizes",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "elements",
				Value: 1_000_000,
				Usage: "domain size per batch",
			},
			&cli.IntFlag{
				Name:  "batches",
				Value: 5,
				Usage: "batches per pool size",
			},
			&cli.IntSliceFlag{
				Name:  "workers",
				Value: cli.NewIntSlice(0, 1, 2, 4, 8),
				Usage: "pool sizes to compare (0 = single-threaded driver)",
			},
			&cli.BoolFlag{
				Name:  "pin",
				Usage: "pin workers to CPUs",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("schedbench: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	elements := c.Int("elements")
	batches := c.Int("batches")
	sizes := c.IntSlice("workers")

	color.Cyan("schedbench: %d elements x %d batches per pool size (host has %d CPUs)",
		elements, batches, core.EstimateConcurrency())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Workers", "Total", "Per Batch", "Elements/s"})

	for _, workers := range sizes {
		total, err := benchPoolSize(workers, elements, batches, c.Bool("pin"))
		if err != nil {
			return err
		}
		perBatch := total / time.Duration(batches)
		rate := float64(elements) * float64(batches) / total.Seconds()
		table.Append([]string{
			fmt.Sprintf("%d", workers),
			total.Round(time.Millisecond).String(),
			perBatch.Round(time.Microsecond).String(),
			fmt.Sprintf("%.0f", rate),
		})
	}

	table.Render()
	return nil
}

func benchPoolSize(workers, elements, batches int, pin bool) (time.Duration, error) {
	cfg := core.DefaultConfig()
	cfg.Logger = &core.NoOpLogger{}
	cfg.PinWorkers = pin
	if workers == 0 {
		cfg.ForceSingleThread = true
	} else {
		cfg.Workers = workers
	}

	s := core.New(cfg)
	defer s.Teardown()

	inputs := make([]int, elements)
	for i := range inputs {
		inputs[i] = i
	}

	type batchState struct {
		domain *core.SliceDomain[int]
		sum    atomic.Int64
		done   atomic.Bool
	}

	start := time.Now()
	for range batches {
		state := &batchState{domain: core.NewSliceDomain(inputs)}
		stage := core.NewDomainChain("bench", func(b *batchState) core.Domain[int] {
			return b.domain
		}).OnLoop(func(ctx context.Context, b *batchState, v int, _ int) error {
			b.sum.Add(int64(v) * int64(v))
			return nil
		}).OnDone(func(ctx context.Context, b *batchState) {
			b.done.Store(true)
		})
		stage.SetIntermediary(state)

		s.EnqueueParallel(stage)
		for !state.done.Load() {
			s.Advance()
		}
	}
	return time.Since(start), nil
}
