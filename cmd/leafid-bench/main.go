// Command leafid-bench exercises an IDGen sequentially and
// concurrently against an in-memory Dao, in the spirit of the teacher
// module's examples/performance/main.go, generalized from a
// hardcoded demo into a flag-driven cmd/ binary.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/Lzww0608/leafid"
	"github.com/Lzww0608/leafid/internal/daos/mockdao"
)

var (
	app = kingpin.New("leafid-bench", "Sequential and concurrent throughput benchmark for leafid.IDGen.")

	tag        = app.Flag("tag", "tag to allocate IDs under").Default("1").Int32()
	sequential = app.Flag("sequential", "number of IDs to allocate sequentially").Default("1000000").Int()
	goroutines = app.Flag("goroutines", "number of concurrent workers").Default("5").Int()
	perWorker  = app.Flag("per-worker", "IDs each concurrent worker allocates").Default("10000").Int()
	lazy       = app.Flag("lazy", "create the tag's buffer lazily instead of seeding it up front").Default("false").Bool()
	maxStep    = app.Flag("max-step", "adaptive step ceiling").Default("1000000").Int32()
	verbose    = app.Flag("verbose", "enable debug logging").Default("false").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync() //nolint:errcheck

	dao := mockdao.New()
	if err := dao.Insert(context.Background(), leafid.Leaf{Tag: *tag, MaxID: 0, Step: 1000}); err != nil {
		fmt.Fprintln(os.Stderr, "seed dao:", err)
		os.Exit(1)
	}

	gen := leafid.New(dao, leafid.NewConfig(
		leafid.WithLazy(*lazy),
		leafid.WithMaxStep(*maxStep),
		leafid.WithLogger(logger),
	))
	defer gen.Close() //nolint:errcheck

	ctx := context.Background()
	if err := gen.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}

	fmt.Println("=== leafid-bench ===")
	runSequential(ctx, gen)
	runConcurrent(ctx, gen)
}

func runSequential(ctx context.Context, gen *leafid.IDGen) {
	fmt.Printf("1. Sequential allocation (%d IDs):\n", *sequential)
	start := time.Now()
	for i := 0; i < *sequential; i++ {
		if _, err := gen.Get(ctx, *tag); err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("   Time: %s\n", elapsed)
	fmt.Printf("   Rate: %.0f IDs/second\n\n", float64(*sequential)/elapsed.Seconds())
}

func runConcurrent(ctx context.Context, gen *leafid.IDGen) {
	fmt.Printf("2. Concurrent allocation (%d workers, %d each):\n", *goroutines, *perWorker)

	var wg sync.WaitGroup
	seen := make(chan int64, *goroutines**perWorker)
	start := time.Now()

	for i := 0; i < *goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < *perWorker; j++ {
				id, err := gen.Get(ctx, *tag)
				if err != nil {
					fmt.Fprintln(os.Stderr, "get:", err)
					os.Exit(1)
				}
				seen <- id
			}
		}()
	}
	wg.Wait()
	close(seen)
	elapsed := time.Since(start)

	total := *goroutines * *perWorker
	unique := make(map[int64]struct{}, total)
	for id := range seen {
		unique[id] = struct{}{}
	}

	fmt.Printf("   Time: %s\n", elapsed)
	fmt.Printf("   Rate: %.0f IDs/second\n", float64(total)/elapsed.Seconds())
	fmt.Printf("   Unique: %d/%d\n\n", len(unique), total)
}
