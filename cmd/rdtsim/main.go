// Command rdtsim runs the comparative RDT experiment driver from the
// command line (spec §6's CLI surface, listed there for completeness
// rather than as this module's core scope). Flag parsing follows the
// teacher's example/client pattern: stdlib flag, no subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rdtlab/rdtsim/driver"
	"github.com/rdtlab/rdtsim/internal/protocol"
	"github.com/rdtlab/rdtsim/internal/qerr"
	"github.com/rdtlab/rdtsim/internal/xlog"
	"github.com/rdtlab/rdtsim/metrics"
)

// presets are the named scenarios spec §8 gives concrete expectations
// for, keyed by the --scenario flag's {A|B|C|D} tokens.
var presets = map[string]driver.Scenario{
	"A": {PayloadBytes: 20000, MSS: 1024, Window: 4, RTT: 50 * time.Millisecond},
	"B": {PayloadBytes: 20000, MSS: 1024, Window: 4, RTT: 50 * time.Millisecond, LossProb: 0.2},
	"C": {PayloadBytes: 20000, MSS: 1024, Window: 8, RTT: 100 * time.Millisecond, LossProb: 0.1},
	"D": {PayloadBytes: 20000, MSS: 1024, Window: 4, RTT: 50 * time.Millisecond, LossProb: 0.05, CorruptProb: 0.02, ReorderProb: 0.02},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out *os.File) int {
	fs := flag.NewFlagSet("rdtsim", flag.ContinueOnError)
	scenarioFlag := fs.String("scenario", "custom", "preset scenario {A|B|C|D|custom}")
	protoFlag := fs.String("protocol", "all", "protocol under test {gbn|sr|tcp|all}")
	loss := fs.Float64("loss", 0, "segment loss probability, [0,1]")
	rttMs := fs.Int("rtt", 50, "base round-trip time in milliseconds")
	window := fs.Uint("window", uint(protocol.DefaultWindow), "sender window in segments")
	payloadBytes := fs.Int("bytes", int(protocol.DefaultMSS)*20, "payload size in bytes")
	mss := fs.Int("mss", int(protocol.DefaultMSS), "maximum segment size in bytes")
	runs := fs.Int("runs", 1, "number of independent runs to average over")
	seed := fs.Int64("seed", 1, "base PRNG seed")
	corrupt := fs.Float64("corrupt", 0, "segment corruption probability, [0,1]")
	reorder := fs.Float64("reorder", 0, "segment reorder probability, [0,1]")
	congestionControl := fs.Bool("cc", false, "enable the TCP-like sender's optional AIMD congestion window")
	verbose := fs.Bool("verbose", false, "log per-run lifecycle events to stderr")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus /metrics on this address until the run completes")
	_ = fs.String("output", "", "output directory (unused: results print to stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *verbose {
		xlog.SetLevel(xlog.LevelDebug)
	}

	var collectors *metrics.Collectors
	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		collectors = metrics.NewCollectors(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				xlog.Errorf("metrics: server error: %v", err)
			}
		}()
		defer server.Close()
	}

	base := driver.Scenario{
		LossProb:          *loss,
		RTT:               time.Duration(*rttMs) * time.Millisecond,
		Window:            uint32(*window),
		PayloadBytes:      *payloadBytes,
		MSS:               *mss,
		Runs:              *runs,
		Seed:              *seed,
		CorruptProb:       *corrupt,
		ReorderProb:       *reorder,
		CongestionControl: *congestionControl,
	}
	if *scenarioFlag != "custom" {
		preset, ok := presets[*scenarioFlag]
		if !ok {
			fmt.Fprintf(os.Stderr, "rdtsim: unknown scenario preset %q\n", *scenarioFlag)
			return 2
		}
		preset.Runs, preset.Seed, preset.CongestionControl = base.Runs, base.Seed, base.CongestionControl
		base = preset
	}

	protocols, err := protocolsToRun(*protoFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdtsim: %v\n", err)
		return 2
	}

	anyFailed := false
	fmt.Fprintln(out, "protocol\tmean_time_s\tmean_throughput_bps\tmean_retransmissions")
	for _, p := range protocols {
		sc := base
		sc.Protocol = p
		if err := sc.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "rdtsim: %v\n", err)
			return 2
		}
		agg, err := driver.RunScenario(context.Background(), sc, nil, collectors)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rdtsim: %v\n", err)
			return 2
		}
		row := agg.Row
		fmt.Fprintf(out, "%s\t%.6f\t%.2f\t%.2f\n", row.Protocol, row.MeanTimeSeconds, row.MeanThroughputBps, row.MeanRetransmissions)
		if row.SuccessfulRuns < row.Runs {
			anyFailed = true
		}
	}

	if anyFailed {
		return 1
	}
	return 0
}

func protocolsToRun(flagValue string) ([]string, error) {
	if flagValue == "all" {
		return []string{"gbn", "sr", "tcp"}, nil
	}
	if _, ok := protocol.ParseVariant(flagValue); !ok {
		return nil, qerr.NewConfigInvalid("protocol", fmt.Sprintf("unknown protocol %q", flagValue))
	}
	return []string{flagValue}, nil
}
