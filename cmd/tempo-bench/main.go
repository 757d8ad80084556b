// Command tempo-bench measures Run round trips and update fan-out against
// an in-process tempo server.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	tempo "github.com/overturetool/tempo-plotting-tool"
	"github.com/overturetool/tempo-plotting-tool/internal/config"
	"github.com/overturetool/tempo-plotting-tool/internal/errors"
	"github.com/overturetool/tempo-plotting-tool/internal/jsoncodec"
	"github.com/overturetool/tempo-plotting-tool/internal/logging"
	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

const benchModel = `
type Tank struct {
	level  float64
	inflow float64
}

type Plant struct {
	tank  *Tank
	temp  float64
	ticks int
}

func NewPlant() *Plant {
	return &Plant{tank: &Tank{inflow: 0.5}, temp: 15}
}

func (p *Plant) Step() {
	p.ticks++
	p.tank.level += p.tank.inflow
	p.temp += (20 - p.temp) / 10
}
`

type profile struct {
	Name     string
	Clients  int
	Duration time.Duration
	RPS      float64
	Steps    int
}

var profiles = map[string]profile{
	"fast":     {Name: "fast", Clients: 10, Duration: 5 * time.Second, RPS: 5, Steps: 1},
	"standard": {Name: "standard", Clients: 50, Duration: 20 * time.Second, RPS: 2, Steps: 5},
	"fanout":   {Name: "fanout", Clients: 200, Duration: 20 * time.Second, RPS: 0.5, Steps: 10},
}

type counters struct {
	runsSent     atomic.Uint64
	runsComplete atomic.Uint64
	updates      atomic.Uint64
	errors       atomic.Uint64
	bytesIn      atomic.Uint64
}

func main() {
	var (
		name    string
		p       profile
		jsonOut string
	)

	cmd := &cobra.Command{
		Use:           "tempo-bench",
		Short:         "Benchmark Run round trips and variable fan-out",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := profiles[name]
			if !ok {
				return errors.Newf(errors.CategoryCLI, "unknown profile %q", name).
					WithSuggestion("Use fast, standard or fanout")
			}
			flags := cmd.Flags()
			if !flags.Changed("clients") {
				p.Clients = base.Clients
			}
			if !flags.Changed("duration") {
				p.Duration = base.Duration
			}
			if !flags.Changed("rps") {
				p.RPS = base.RPS
			}
			if !flags.Changed("steps") {
				p.Steps = base.Steps
			}
			p.Name = base.Name
			if p.Clients < 1 || p.RPS <= 0 || p.Steps < 1 {
				return errors.Newf(errors.CategoryCLI, "clients, rps and steps must be positive")
			}

			report, err := run(context.Background(), p)
			if err != nil {
				return err
			}
			writeSummary(cmd.ErrOrStderr(), report)
			if jsonOut != "" {
				return writeJSON(jsonOut, report)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "profile", "fast", "Workload profile: fast, standard, fanout")
	flags.IntVar(&p.Clients, "clients", 0, "Concurrent clients (default from profile)")
	flags.DurationVar(&p.Duration, "duration", 0, "Run time (default from profile)")
	flags.Float64Var(&p.RPS, "rps", 0, "Run requests per second per client (default from profile)")
	flags.IntVar(&p.Steps, "steps", 0, "Steps per Run request (default from profile)")
	flags.StringVar(&jsonOut, "json", "", "Write the JSON report to this path (- for stdout)")

	if err := cmd.Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p profile) (report, error) {
	cfg := config.Default()
	cfg.Model.Root = "Plant"
	cfg.Metrics.Enabled = false
	cfg.Server.AllowedOrigins = []string{"*"}

	app, err := tempo.New(ctx, cfg, tempo.WithSource(benchModel), tempo.WithLogger(logging.NewNop()))
	if err != nil {
		return report{}, err
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return report{}, errors.New("T301").Wrap(err)
	}
	serveCtx, stopServer := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- app.Serve(serveCtx, ln) }()
	defer func() {
		stopServer()
		<-served
	}()
	<-app.Bus().Ready()

	url := "ws://" + ln.Addr().String() + cfg.Server.Endpoint

	runCtx, cancel := context.WithTimeout(ctx, p.Duration)
	defer cancel()

	var (
		c         counters
		samplesMu sync.Mutex
		samples   []time.Duration
		wg        sync.WaitGroup
	)

	start := time.Now()
	wg.Add(p.Clients)
	for i := 0; i < p.Clients; i++ {
		go func() {
			defer wg.Done()
			rtts, err := runClient(runCtx, url, p, &c)
			if err != nil {
				c.errors.Add(1)
			}
			samplesMu.Lock()
			samples = append(samples, rtts...)
			samplesMu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return buildReport(p, elapsed, samples, &c), nil
}

// runClient subscribes to every variable and issues Run requests at the
// profile rate until ctx is done. It returns the Run round trip times.
func runClient(ctx context.Context, url string, p profile, c *counters) ([]time.Duration, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	subscribe := protocol.MustEnvelope(protocol.TypeSubscribe, protocol.SubscribeRequest{
		Variables: []string{"temp", "ticks", "tank.level"},
	})
	if _, err := roundTrip(ctx, conn, subscribe, c); err != nil {
		return nil, err
	}

	runReq := protocol.MustEnvelope(protocol.TypeRun, protocol.RunRequest{Function: "Step", Steps: p.Steps})
	period := time.Duration(float64(time.Second) / p.RPS)
	var rtts []time.Duration

	for ctx.Err() == nil {
		start := time.Now()
		c.runsSent.Add(1)
		if _, err := roundTrip(ctx, conn, runReq, c); err != nil {
			if ctx.Err() != nil {
				return rtts, nil
			}
			return rtts, err
		}
		rtt := time.Since(start)
		c.runsComplete.Add(1)
		rtts = append(rtts, rtt)

		if sleep := period - rtt; sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	return rtts, nil
}

// roundTrip sends env and reads until the reply of the same type arrives,
// counting the variable updates seen on the way.
func roundTrip(ctx context.Context, conn *websocket.Conn, env protocol.Envelope, c *counters) (protocol.Envelope, error) {
	frame, err := protocol.Encode(env)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return protocol.Envelope{}, fmt.Errorf("write: %w", err)
	}

	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetReadDeadline(deadline.Add(5 * time.Second))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("read: %w", err)
		}
		c.bytesIn.Add(uint64(len(msg)))

		reply, err := protocol.Decode(msg)
		if err != nil {
			return protocol.Envelope{}, err
		}
		switch reply.Type {
		case protocol.TypeVariableUpdate:
			c.updates.Add(1)
		case protocol.TypeError:
			return reply, fmt.Errorf("server error: %s", reply.Data)
		case env.Type:
			return reply, nil
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type report struct {
	Profile   string      `json:"profile"`
	Clients   int         `json:"clients"`
	Duration  float64     `json:"duration_s"`
	RPS       float64     `json:"rps_per_client"`
	Steps     int         `json:"steps_per_run"`
	GoVersion string      `json:"go_version"`
	LatencyMS latencyInfo `json:"latency_ms"`
	Runs      uint64      `json:"runs"`
	RunsPerS  float64     `json:"runs_per_s"`
	Updates   uint64      `json:"updates"`
	UpdatesPS float64     `json:"updates_per_s"`
	BytesIn   uint64      `json:"bytes_in"`
	Errors    uint64      `json:"errors"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

func buildReport(p profile, elapsed time.Duration, sorted []time.Duration, c *counters) report {
	secs := elapsed.Seconds()
	r := report{
		Profile:   p.Name,
		Clients:   p.Clients,
		Duration:  secs,
		RPS:       p.RPS,
		Steps:     p.Steps,
		GoVersion: runtime.Version(),
		Runs:      c.runsComplete.Load(),
		Updates:   c.updates.Load(),
		BytesIn:   c.bytesIn.Load(),
		Errors:    c.errors.Load(),
	}
	if secs > 0 {
		r.RunsPerS = float64(r.Runs) / secs
		r.UpdatesPS = float64(r.Updates) / secs
	}
	if len(sorted) > 0 {
		r.LatencyMS = latencyInfo{
			Min: ms(sorted[0]),
			P50: ms(percentile(sorted, 0.50)),
			P95: ms(percentile(sorted, 0.95)),
			P99: ms(percentile(sorted, 0.99)),
			Max: ms(sorted[len(sorted)-1]),
		}
	}
	return r
}

func writeSummary(w io.Writer, r report) {
	fmt.Fprintln(w, "=== tempo benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", r.Profile)
	fmt.Fprintf(w, "Clients: %d\n", r.Clients)
	fmt.Fprintf(w, "Duration: %.1fs\n", r.Duration)
	fmt.Fprintf(w, "Target per-client rate: %.2f runs/s, %d steps each\n", r.RPS, r.Steps)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Runs: %d (%.1f/s)\n", r.Runs, r.RunsPerS)
	fmt.Fprintf(w, "Updates received: %d (%.1f/s)\n", r.Updates, r.UpdatesPS)
	fmt.Fprintf(w, "Bytes received: %d\n", r.BytesIn)
	fmt.Fprintf(w, "Errors: %d\n", r.Errors)
	fmt.Fprintln(w)

	if r.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
		return
	}
	fmt.Fprintln(w, "Run RTT (send -> all steps -> OK):")
	fmt.Fprintf(w, "  min: %.2f ms\n", r.LatencyMS.Min)
	fmt.Fprintf(w, "  p50: %.2f ms\n", r.LatencyMS.P50)
	fmt.Fprintf(w, "  p95: %.2f ms\n", r.LatencyMS.P95)
	fmt.Fprintf(w, "  p99: %.2f ms\n", r.LatencyMS.P99)
	fmt.Fprintf(w, "  max: %.2f ms\n", r.LatencyMS.Max)
}

func writeJSON(path string, r report) error {
	out := io.Writer(os.Stdout)
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	data, err := jsoncodec.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
