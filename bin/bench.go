package main

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/paths"
)

var (
	bench_command = app.Command(
		"bench", "Measure collection write and scan throughput.")

	bench_command_count = bench_command.Flag(
		"count", "Number of records to write.").
		Default("10000").Int64()
)

func doBench() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	sm, err := startEssentialServices(config_obj)
	if err != nil {
		return fmt.Errorf("Starting services: %w", err)
	}
	defer sm.Close()

	// Scratch collection, removed when we are done.
	collection_id := path.Join(paths.BENCHMARKS_ROOT, uuid.New().String())
	collection := collections.NewIndexedCollection(
		config_obj, collection_id, collections.DictCodec{})
	defer func() { _ = collection.Delete() }()

	count := *bench_command_count

	start := time.Now()
	for i := int64(0); i < count; i++ {
		row := ordereddict.NewDict().
			Set("row", i).
			Set("timestamp", time.Now().UTC().Unix())
		_, err := collection.Add(row)
		if err != nil {
			return err
		}
	}
	write_time := time.Now().Sub(start)
	fmt.Printf("Wrote %v records in %v (%v records/sec)\n",
		humanize.Comma(count), write_time, rate(count, write_time))

	start = time.Now()
	scanned := int64(0)
	for range collection.GenerateItems(context.Background(), 0) {
		scanned++
	}
	scan_time := time.Now().Sub(start)
	fmt.Printf("Scanned %v records in %v (%v records/sec)\n",
		humanize.Comma(scanned), scan_time, rate(scanned, scan_time))

	length, err := collection.Length(context.Background())
	if err != nil {
		return err
	}
	if length != count {
		return fmt.Errorf(
			"Length mismatch: wrote %v records but Length() reports %v",
			count, length)
	}

	return nil
}

func rate(count int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	return humanize.Comma(int64(float64(count) / elapsed.Seconds()))
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case bench_command.FullCommand():
			FatalIfError(bench_command, doBench)

		default:
			return false
		}
		return true
	})
}
