//go:build ignore

// Stress run for the lock-free leaky bucket with resource monitoring.
// Many goroutines hammer one limiter; the run reports CAS conflicts,
// the achieved rate, and goroutine/heap deltas, and can write profiles.
//
//	go run scripts/stress-with-profiling.go -callers 2000 -rate 50000 -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

func main() {
	callers := flag.Int("callers", 1000, "concurrent callers")
	rate := flag.Int("rate", 20000, "takes per second")
	slack := flag.Int("slack", ratelimit.DefaultSlack, "slack in intervals")
	duration := flag.Duration("duration", 20*time.Second, "run length")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write memory profile to file")
	monitorInterval := flag.Duration("monitor-interval", 5*time.Second, "interval for monitoring stats")
	flag.Parse()

	lb, err := ratelimit.New(*rate, ratelimit.WithSlack(*slack))
	if err != nil {
		log.Fatal(err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Printf("✓ CPU profiling enabled: %s\n", *cpuProfile)
	}

	var initial runtime.MemStats
	runtime.ReadMemStats(&initial)
	initialGoroutines := runtime.NumGoroutine()

	fmt.Printf("Stressing leaky bucket: %d callers, %d/s, slack %d, %s\n\n",
		*callers, *rate, *slack, *duration)
	fmt.Println("Time\t\tGoroutines\tMemAlloc(MB)\tTakes\t\tConflicts")

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var taken atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := lb.TakeContext(ctx); err != nil {
					return
				}
				taken.Add(1)
			}
		}()
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		ticker := time.NewTicker(*monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				stats := lb.Stats()
				fmt.Printf("%s\t%d\t\t%.2f\t\t%d\t\t%d\n",
					time.Now().Format("15:04:05"),
					runtime.NumGoroutine(),
					float64(m.Alloc)/1024/1024,
					stats.Takes,
					stats.Conflicts,
				)
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	<-monitorDone
	elapsed := time.Since(start)

	stats := lb.Stats()
	achieved := float64(taken.Load()) / elapsed.Seconds()
	fmt.Println()
	fmt.Printf("Duration:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Completed takes: %d (%.1f/s, limit %d/s)\n", taken.Load(), achieved, *rate)
	fmt.Printf("Reserved slots:  %d\n", stats.Takes)
	fmt.Printf("CAS conflicts:   %d (%.3f per take)\n", stats.Conflicts,
		float64(stats.Conflicts)/float64(max(stats.Takes, 1)))

	// Let abandoned timers drain before counting goroutines.
	time.Sleep(100 * time.Millisecond)
	var final runtime.MemStats
	runtime.ReadMemStats(&final)
	finalGoroutines := runtime.NumGoroutine()
	fmt.Printf("Goroutines:      %d (delta: %+d)\n", finalGoroutines, finalGoroutines-initialGoroutines)
	fmt.Printf("GC runs:         %d\n", final.NumGC-initial.NumGC)

	if finalGoroutines > initialGoroutines+5 {
		fmt.Printf("⚠ WARNING: Possible goroutine leak detected! (+%d goroutines)\n", finalGoroutines-initialGoroutines)
	} else {
		fmt.Println("✓ No goroutine leaks detected")
	}

	exit := 0
	// Allow one slack burst plus a little scheduling noise.
	if limit := float64(*rate)*1.01 + float64(*slack+1)/elapsed.Seconds(); achieved > limit {
		fmt.Printf("✗ Achieved rate %.1f/s exceeds limit\n", achieved)
		exit = 1
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		fmt.Printf("✓ Memory profile written to: %s\n", *memProfile)
	}

	if exit != 0 {
		pprof.StopCPUProfile()
		os.Exit(exit)
	}
}
