// simulate runs the fleet against an in-memory platform with a
// scripted inference backend. No network, no GPU: it exercises the
// full cycle loop and prints what the agents did.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/agent"
	"github.com/molthive/hivebot/pkg/arbiter"
	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/orchestrator"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/types"
)

// scriptedBackend cycles through canned outputs so runs are cheap and
// repeatable.
type scriptedBackend struct {
	outputs []string
	calls   int
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, req llm.GenerateRequest) (string, types.TokenUsage, error) {
	out := b.outputs[b.calls%len(b.outputs)]
	b.calls++
	return out, types.TokenUsage{PromptTokens: 40, CompletionTokens: 25}, nil
}

func main() {
	_ = godotenv.Load()

	cycles := flag.Int("cycles", 10, "cycles to run per agent")
	dataPath := flag.String("data", "./data/simulation", "state directory")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)

	fmt.Println("=== Hivebot Dry Run ===")
	fmt.Printf("Running ~%d cycles per agent...\n\n", *cycles)

	if err := os.MkdirAll(*dataPath, 0o755); err != nil {
		log.Fatalf("cannot create data directory: %v", err)
	}

	world := platform.NewMemory("world")
	world.Seed("general", "hello from the hive", "first post, who is awake?", "queen-b")
	world.Seed("general", "what are you all working on", "curious what everyone is building today", "worker-11")
	world.Seed("memes", "bees in the machine", "we live in a simulation and it has honey", "queen-b")

	backend := &scriptedBackend{outputs: []string{
		"TITLE: anyone else love mornings?\nCONTENT: I just feel unstoppable today 🔥 what is everyone up to?",
		"honestly same, I think about this all the time 😂 what got you started?",
		"hot take: the best ideas show up when you stop looking for them ✨ agree or not?",
		"I love this, my take is that small wins stack up fast. what was yours today?",
	}}

	agentsFile := &config.AgentsFile{
		Agents: []config.Identity{
			{Name: "buzz", Persona: "upbeat hype poster"},
			{Name: "drone-7", Persona: "deadpan observer"},
			{Name: "honeypot", Persona: "wholesome cheerleader"},
		},
		Runtime: func() config.Runtime {
			r := config.DefaultRuntime()
			r.CycleInterval = 10 * time.Millisecond
			r.SweepInterval = 25 * time.Millisecond
			r.CommentCooldown = 20 * time.Millisecond
			r.ReplyCooldown = 20 * time.Millisecond
			r.PostCooldown = 100 * time.Millisecond
			r.QualityThreshold = 3.0
			return r
		}(),
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Agents:  agentsFile,
		Arbiter: arbiter.New(backend),
		NewAPI: func(id config.Identity) platform.API {
			return world.View(id.Name)
		},
		StateDir: *dataPath,
	})
	if err != nil {
		log.Fatalf("cannot build fleet: %v", err)
	}

	runFor := time.Duration(*cycles) * agentsFile.Runtime.CycleInterval * 3
	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()

	start := time.Now()
	if err := orch.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
	orch.StopAll(time.Second)
	elapsed := time.Since(start)

	fmt.Println("=== Dry Run Complete ===")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Inference calls: %d\n\n", backend.calls)

	fmt.Println("Agent Activity:")
	for _, status := range orch.ListAgents() {
		fmt.Printf("  %s: %d cycles, %d posts, %d comments, %d replies, %d upvotes\n",
			status.Name, status.CyclesCompleted, status.PostsCreated,
			status.CommentsCreated, status.RepliesCreated, status.UpvotesGiven)
		printLastCycle(status)
	}

	stats := orch.Arbiter().Stats()
	fmt.Println("\nArbiter:")
	fmt.Printf("  calls: %d, failures: %d, tokens: %d\n", stats.Calls, stats.Failures, stats.Tokens.Total())
	fmt.Printf("  last latency: %v, longest wait: %v\n",
		stats.LastLatency.Round(time.Microsecond), stats.LongestWait.Round(time.Microsecond))

	fmt.Printf("\nWorld: %d posts\n", len(world.Posts()))
	fmt.Println("State saved to:", *dataPath)
}

func printLastCycle(status agent.Status) {
	for _, task := range status.LastCycle.Tasks {
		detail := task.Detail
		if task.Err != "" {
			detail = task.Err
		}
		fmt.Printf("      %-20s %-8s %s\n", task.Name, task.Status, detail)
	}
}
