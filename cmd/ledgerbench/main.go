// Command ledgerbench drives an Engine with a synthetic load of ledger
// postings and reports throughput and the number of registered metric
// families. It
// exists to exercise the flush/compaction pipeline end to end without a
// network-facing server in front of it.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/dd0wney/cluso-ledger/pkg/lsm"
	"github.com/dd0wney/cluso-ledger/pkg/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flagSet := flag.NewFlagSet("ledgerbench", flag.ContinueOnError)

	dataDir := flagSet.String("data-dir", "", "Directory to store SSTables (required)")
	capacity := flagSet.Int("capacity", 65536, "Memtable record capacity before a flush is triggered")
	entries := flagSet.Int("entries", 1_000_000, "Number of ledger entries to write")
	accounts := flagSet.Int("accounts", 10_000, "Number of distinct accounts to spread entries across")
	readFraction := flagSet.Float64("read-fraction", 0.2, "Fraction of operations that are reads rather than writes")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "error: --data-dir is required")
		return 2
	}
	if *capacity <= 0 {
		fmt.Fprintln(os.Stderr, "error: --capacity must be positive")
		return 2
	}

	opts := lsm.DefaultEngineOptions(*dataDir)
	opts.MemtableCapacity = *capacity

	engine, err := lsm.NewEngine(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: creating engine:", err)
		return 1
	}
	defer engine.Close()

	rng := rand.New(rand.NewSource(1))
	start := time.Now()

	for i := 0; i < *entries; i++ {
		account := randomAccount(rng, *accounts)
		key := lsm.LedgerKey{Account: account, Sequence: uint64(i)}

		if rng.Float64() < *readFraction {
			engine.Get(key)
			continue
		}

		entry := lsm.LedgerEntry{
			Account:  account,
			Sequence: key.Sequence,
			Amount:   rng.Int63n(200_000) - 100_000,
		}
		if err := engine.Put(entry); err != nil {
			fmt.Fprintln(os.Stderr, "error: put failed:", err)
			return 1
		}
	}

	elapsed := time.Since(start)
	printSummary(os.Stdout, *entries, elapsed, opts.Metrics)

	return 0
}

func randomAccount(rng *rand.Rand, numAccounts int) lsm.AccountID {
	var id lsm.AccountID
	v := rng.Intn(numAccounts)
	id[14] = byte(v >> 8)
	id[15] = byte(v)
	return id
}

func printSummary(out *os.File, totalOps int, elapsed time.Duration, reg *metrics.Registry) {
	opsPerSec := float64(totalOps) / elapsed.Seconds()
	fmt.Fprintf(out, "ledgerbench: %d ops in %s (%.0f ops/sec)\n", totalOps, elapsed, opsPerSec)

	families, err := reg.GetPrometheusRegistry().Gather()
	if err != nil {
		return
	}
	fmt.Fprintf(out, "ledgerbench: %d metric families registered\n", len(families))
}
