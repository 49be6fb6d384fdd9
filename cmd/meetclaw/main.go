package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stellarlinkco/meetclaw/internal/bus"
	"github.com/stellarlinkco/meetclaw/internal/config"
	"github.com/stellarlinkco/meetclaw/internal/gateway"
	"github.com/stellarlinkco/meetclaw/internal/pipeline"
	"github.com/stellarlinkco/meetclaw/internal/store"
	"github.com/stellarlinkco/meetclaw/internal/transcript"
)

const apiKeyHint = "API key not set. Run 'meetclaw onboard' or set MEETCLAW_API_KEY / ANTHROPIC_API_KEY"

// ProcessOptions for running a single transcript with custom dependencies
type ProcessOptions struct {
	ProcessorFactory gateway.ProcessorFactory
	Stdin            io.Reader
	Stdout           io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "meetclaw",
	Short: "meetclaw - turn meeting transcripts into notes, tasks and agendas",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway (API + webhook + workers)",
	RunE:  runServe,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one transcript file and print the result",
	RunE:  runProcess,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show meetclaw status",
	RunE:  runStatus,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent processing runs",
	RunE:  runRuns,
}

var (
	fileFlag  string
	jsonFlag  bool
	limitFlag int
)

func init() {
	processCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Transcript JSON file ('-' for stdin)")
	processCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the full result as JSON")
	runsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(serveCmd, processCmd, onboardCmd, statusCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes the standard logger to a rotating file when configured.
func setupLogging(cfg *config.Config) io.Closer {
	if cfg.Log.File == "" {
		return nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return errors.New(apiKeyHint)
	}
	if lj := setupLogging(cfg); lj != nil {
		defer lj.Close()
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runProcess(cmd *cobra.Command, args []string) error {
	return runProcessWithOptions(ProcessOptions{})
}

// runProcessWithOptions runs one transcript with injectable dependencies for testing
func runProcessWithOptions(opts ProcessOptions) error {
	if fileFlag == "" {
		return errors.New("transcript file is required (-f)")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	in, err := readTranscript(fileFlag, stdin)
	if err != nil {
		return err
	}

	factory := opts.ProcessorFactory
	if factory == nil {
		if cfg.Provider.APIKey == "" {
			return errors.New(apiKeyHint)
		}
		factory = gateway.DefaultProcessorFactory
	}
	proc, err := factory(cfg)
	if err != nil {
		return err
	}
	if lj := setupLogging(cfg); lj != nil {
		defer lj.Close()
	}

	js, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer js.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := js.Begin(ctx, in.ID, in.DisplayTitle(), bus.SourceCLI); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	res := proc.Process(ctx, in)
	recordResult(js, res)

	if jsonFlag {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprintln(stdout, string(data))
	} else {
		printResult(stdout, res)
	}

	if !res.Success {
		return fmt.Errorf("processing failed: %s", firstLine(res.Error))
	}
	return nil
}

func readTranscript(path string, stdin io.Reader) (transcript.Input, error) {
	var in transcript.Input
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return in, fmt.Errorf("read transcript: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parse transcript: %w", err)
	}
	if err := in.Validate(); err != nil {
		return in, fmt.Errorf("invalid transcript: %w", err)
	}
	return in, nil
}

func recordResult(js *store.JobStore, res *pipeline.ProcessingResult) {
	ctx := context.Background()
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("[meetclaw] encode result: %v", err)
	}
	if res.Success {
		err = js.Complete(ctx, res.MeetingID, data)
	} else {
		err = js.Fail(ctx, res.MeetingID, res.Error, data)
	}
	if err != nil {
		log.Printf("[meetclaw] record result: %v", err)
	}
}

func printResult(w io.Writer, res *pipeline.ProcessingResult) {
	status := "success"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "Meeting: %s (%s)\n", res.Title, res.MeetingID)
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Tier: %s (%s)\n", res.Tier, res.Model)
	fmt.Fprintf(w, "Method: %s", res.ProcessingMethod)
	if res.ChunkCount > 0 {
		fmt.Fprintf(w, ", %d segments", res.ChunkCount)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Iterations: %d", res.Iterations)
	if res.CeilingReached {
		fmt.Fprint(w, " (ceiling reached)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tool calls: %d\n", len(res.ToolCalls))
	fmt.Fprintf(w, "Cost: $%.4f (cache savings $%.4f)\n", res.Cost.TotalCost, res.Cost.CacheSavings)
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", firstLine(res.Error))
	}
	if res.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", res.Summary)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and backend URL\n", cfgPath)
	fmt.Println("  2. Or set MEETCLAW_API_KEY / MEETCLAW_BACKEND_URL environment variables")
	fmt.Println("  3. Run 'meetclaw process -f transcript.json' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("Models: fast=%s standard=%s\n", cfg.Models.Fast, cfg.Models.Standard)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
	fmt.Printf("Gateway: %s:%d (%d workers)\n", cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.Workers)
	fmt.Printf("Webhook secret: %v\n", cfg.Gateway.WebhookSecret != "")
	fmt.Printf("Fireflies: %s\n", maskKey(cfg.Fireflies.APIKey))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Notify.Telegram.Enabled)
	if cfg.Pricing.File != "" {
		fmt.Printf("Pricing: %s\n", cfg.Pricing.File)
	} else {
		fmt.Println("Pricing: built-in defaults")
	}

	if _, err := os.Stat(cfg.DBPath()); err != nil {
		fmt.Println("Job store: not created yet")
	} else {
		fmt.Printf("Job store: %s\n", cfg.DBPath())
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := os.Stat(cfg.DBPath()); err != nil {
		fmt.Println("No runs recorded yet")
		return nil
	}

	js, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer js.Close()

	jobs, err := js.List(context.Background(), limitFlag)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}
	printRuns(os.Stdout, jobs)
	return nil
}

func printRuns(w io.Writer, jobs []store.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UPDATED\tSTATUS\tSOURCE\tMEETING\tTITLE\tCOST")
	for _, j := range jobs {
		cost := "-"
		if c := gjson.GetBytes(j.Result, "cost.total_cost"); c.Exists() {
			cost = fmt.Sprintf("$%.4f", c.Float())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.UpdatedAt.Local().Format(time.DateTime), j.Status, j.Source, j.MeetingID, truncate(j.Title, 40), cost)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
