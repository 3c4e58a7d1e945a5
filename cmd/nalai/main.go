// Command nalai is an interactive terminal client for the nalai agent
// API. It streams responses as they are generated and walks the user
// through tool call reviews when the agent pauses for one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/g-pavlov/nalai-sub000/internal/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/api"
	"github.com/g-pavlov/nalai-sub000/pkg/client"
	"github.com/g-pavlov/nalai-sub000/pkg/config"
	"github.com/g-pavlov/nalai-sub000/pkg/history"
	pubobs "github.com/g-pavlov/nalai-sub000/pkg/observability"
	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", os.Getenv("NALAI_CONFIG"), "Configuration file (YAML)")
	baseURL    = flag.String("base-url", "", "Agent API base URL (overrides config)")
	message    = flag.String("message", "", "Send one message and exit instead of starting the REPL")
	resumeID   = flag.String("conversation", "", "Continue an existing conversation")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	pubobs.InitMetrics()
	if err := observability.InitFromEnv(); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.Shutdown(shutdownCtx)
	}()

	store, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	conv := client.NewConversation(client.New(client.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           time.Duration(cfg.Timeout),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}))
	conv.SetRecorder(history.NewRecorder(store))
	if *resumeID != "" {
		conv.SetID(*resumeID)
	}

	out := newRenderer(os.Stdout)
	conv.OnTransition(out.OnTransition)
	conv.OnSnapshot(out.OnSnapshot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.EnableMetrics {
		obsServer := pubobs.NewServer(cfg.Observability.MetricsPort)
		obsServer.Health().RegisterCheck(pubobs.APICheck(pingAPI(cfg.BaseURL)))
		obsServer.Health().RegisterCheck(pubobs.StoreCheck(func(ctx context.Context) error {
			_, err := store.ListConversations(ctx, history.ListOptions{Limit: 1})
			return err
		}))

		g.Go(func() error {
			log.Printf("Metrics on :%d/metrics", cfg.Observability.MetricsPort)
			if err := obsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return obsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// Stops the metrics server once the chat loop exits.
		defer stop()
		return run(gctx, conv, out)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}

// pingAPI reports whether the agent API answers at all; any HTTP
// response counts as reachable.
func pingAPI(baseURL string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	}
}

func loadConfig() (*config.Config, error) {
	if *configFile != "" {
		return config.LoadConfig(*configFile)
	}
	return config.FromEnv(), nil
}

func openHistory(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case "", "memory":
		return history.NewMemoryStore(), nil
	case "file":
		return history.NewFileStore(cfg.History.Dir)
	case "redis":
		return history.NewRedisStore(history.RedisConfig{
			Addr:     cfg.History.Redis.Addr,
			Password: cfg.History.Redis.Password,
			DB:       cfg.History.Redis.DB,
			TTL:      time.Duration(cfg.History.Redis.TTL),
		})
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

func run(ctx context.Context, conv *client.Conversation, out *renderer) error {
	stdin := bufio.NewScanner(os.Stdin)

	if *message != "" {
		return runTurn(ctx, conv, out, stdin, *message)
	}

	fmt.Printf("nalai %s (ctrl-d to quit)\n", Version)
	for {
		fmt.Print("\n> ")
		if !stdin.Scan() {
			return stdin.Err()
		}
		text := strings.TrimSpace(stdin.Text())
		if text == "" {
			continue
		}

		if err := runTurn(ctx, conv, out, stdin, text); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("turn failed: %v", err)
		}
	}
}

// runTurn sends one message and drives any interrupt review exchanges
// until the response reaches a terminal state.
func runTurn(ctx context.Context, conv *client.Conversation, out *renderer, stdin *bufio.Scanner, text string) error {
	if err := conv.Send(ctx, text); err != nil {
		return err
	}

	for conv.ActiveInterrupt() != nil {
		decision, err := promptDecision(conv.ActiveInterrupt(), out, stdin)
		if err != nil {
			return err
		}
		if err := conv.SubmitDecision(ctx, decision); err != nil {
			if errors.Is(err, stream.ErrInvalidDecisionArgs) || errors.Is(err, stream.ErrDecisionNotAllowed) {
				fmt.Printf("  %v\n", err)
				continue
			}
			return err
		}
	}

	out.Finish(conv.Snapshot())
	return nil
}

// promptDecision asks the user how to handle a pending review.
func promptDecision(req *stream.InterruptRequest, out *renderer, stdin *bufio.Scanner) (stream.Decision, error) {
	for {
		out.ShowInterrupt(req)
		if !stdin.Scan() {
			// Input closed mid-review; reject so nothing runs unapproved.
			return stream.Decision{Kind: api.DecisionReject}, nil
		}

		switch strings.ToLower(strings.TrimSpace(stdin.Text())) {
		case "a", "accept":
			return stream.Decision{Kind: api.DecisionAccept}, nil
		case "e", "edit":
			fmt.Print("  new arguments (JSON object): ")
			if !stdin.Scan() {
				return stream.Decision{Kind: api.DecisionReject}, nil
			}
			return stream.Decision{Kind: api.DecisionEdit, ArgsJSON: stdin.Text()}, nil
		case "r", "reject":
			fmt.Print("  reason (empty for plain rejection): ")
			if !stdin.Scan() {
				return stream.Decision{Kind: api.DecisionReject}, nil
			}
			return stream.Decision{Kind: api.DecisionReject, Message: strings.TrimSpace(stdin.Text())}, nil
		case "f", "feedback":
			fmt.Print("  feedback: ")
			if !stdin.Scan() {
				return stream.Decision{Kind: api.DecisionReject}, nil
			}
			return stream.Decision{Kind: api.DecisionFeedback, Message: strings.TrimSpace(stdin.Text())}, nil
		default:
			fmt.Println("  unrecognized choice")
		}
	}
}
