// kubechat is a terminal front-end and HTTP server for the AI-chat
// Kubernetes assistant: it wires the preferences store, cluster client,
// tool registry, and chat orchestrator together.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"kubechat/chat"
	"kubechat/config"
	"kubechat/kube"
	"kubechat/provider"
	"kubechat/store"
	"kubechat/tool"
	"kubechat/transport"
)

func main() {
	app := &cli.App{
		Name:  "kubechat",
		Usage: "AI chat assistant for Kubernetes clusters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the config file",
			},
			&cli.StringFlag{
				Name:  "kubeconfig",
				Usage: "Path to the kubeconfig file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "chat",
				Usage: "Interactive chat with a cluster",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "cluster",
						Usage:    "Kubeconfig context to chat with",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Model provider (anthropic or openai)",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Override the configured model for this session",
					},
				},
				Action: runChat,
			},
			{
				Name:  "serve",
				Usage: "Serve the chat API over HTTP/SSE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
					},
				},
				Action: runServe,
			},
			{
				Name:   "clusters",
				Usage:  "List kubeconfig contexts and their reachability",
				Action: runClusters,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type runtime struct {
	cfg    *config.Live
	logger *zap.Logger
	lookup *kube.KubeconfigLookup
	orch   *chat.Orchestrator
	hub    *transport.Hub
}

func buildRuntime(c *cli.Context) (*runtime, error) {
	logger, err := buildLogger(c.Bool("debug"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	kubeconfig := c.String("kubeconfig")
	if kubeconfig == "" {
		kubeconfig = cfg.Kubeconfig
	}

	live := config.NewLive(cfg)
	var creds chat.CredentialSource = live
	if model := c.String("model"); model != "" {
		creds = modelOverride{source: live, model: model}
	}
	lookup := kube.NewKubeconfigLookup(kubeconfig, logger)
	executor := kube.NewExecutor(kubeconfig, logger)
	registry := tool.NewRegistry(executor, logger)
	hub := transport.NewHub(logger)
	orch := chat.NewOrchestrator(provider.NewFactory(logger), lookup, registry, hub, creds, logger)

	return &runtime{cfg: live, logger: logger, lookup: lookup, orch: orch, hub: hub}, nil
}

// modelOverride pins the model for a session while keeping API keys and
// token limits live from the config.
type modelOverride struct {
	source chat.CredentialSource
	model  string
}

func (m modelOverride) Credential(id provider.ID) (chat.Credential, bool) {
	cred, ok := m.source.Credential(id)
	if ok {
		cred.Model = m.model
	}
	return cred, ok
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runChat(c *cli.Context) error {
	rt, err := buildRuntime(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	providerID := provider.ID(c.String("provider"))
	if providerID == "" {
		providerID = provider.ID(rt.cfg.Get().DefaultProvider)
	}
	clusterID := c.String("cluster")
	conversationID := uuid.New().String()

	st := store.New(conversationID)
	events, unsubscribe := rt.hub.Subscribe()
	defer unsubscribe()

	// Reload credentials when the config file changes.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go config.Watch(watchCtx, c.String("config"), rt.cfg, rt.logger)

	// Ctrl+C cancels the in-flight stream instead of quitting.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			if !rt.orch.Cancel(conversationID) {
				os.Exit(0)
			}
		}
	}()

	fmt.Printf("kubechat - connected to %s (provider: %s)\n", clusterID, providerID)
	fmt.Println("Type a question, or press Ctrl+C twice to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		st.AddUserMessage(input)
		st.StartAssistantMessage()

		ack := rt.orch.HandleSendMessage(context.Background(), chat.SendMessageRequest{
			ConversationID: conversationID,
			ClusterID:      clusterID,
			Provider:       providerID,
			Messages:       st.History(),
		})
		if !ack.Accepted {
			st.AddErrorMessage(ack.Error)
			st.FinishStreaming(nil)
			fmt.Printf("error: %s\n", ack.Error)
			continue
		}

		drainStream(st, events, conversationID)
		fmt.Println()
	}
}

// drainStream applies events to the store and renders them until the
// conversation finishes or errors.
func drainStream(st *store.Store, events <-chan chat.StreamEvent, conversationID string) {
	for event := range events {
		if event.Conversation() != conversationID {
			continue
		}
		st.ApplyEvent(event)

		switch ev := event.(type) {
		case chat.TextDeltaEvent:
			fmt.Print(ev.Text)
		case chat.ToolCallEvent:
			fmt.Printf("\n[tool] %s %s\n", ev.ToolName, ev.Input)
		case chat.ToolResultEvent:
			if ev.IsError {
				fmt.Printf("[tool] %s failed\n", ev.ToolName)
			}
		case chat.ConfirmationRequiredEvent:
			fmt.Printf("\n[confirm] %s requires approval: %s\n", ev.ToolName, ev.Description)
		case chat.ErrorEvent:
			fmt.Printf("\nerror: %s\n", ev.Message)
			return
		case chat.FinishEvent:
			if ev.FinishReason == "cancelled" {
				fmt.Println("\n(cancelled)")
			}
			return
		}
	}
}

func runServe(c *cli.Context) error {
	rt, err := buildRuntime(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	addr := c.String("addr")
	if addr == "" {
		addr = rt.cfg.Get().HTTPAddr
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go config.Watch(watchCtx, c.String("config"), rt.cfg, rt.logger)

	server := transport.NewServer(rt.orch, rt.hub, rt.logger)
	rt.logger.Info("serving chat API", zap.String("addr", addr))
	fmt.Printf("kubechat listening on http://%s\n", addr)
	return http.ListenAndServe(addr, server.Handler())
}

func runClusters(c *cli.Context) error {
	rt, err := buildRuntime(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTEXT\tACCESSIBLE")
	for _, cluster := range rt.lookup.Clusters() {
		fmt.Fprintf(w, "%s\t%t\n", cluster.ID, cluster.Accessible)
	}
	return w.Flush()
}
