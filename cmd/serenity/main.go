package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/config"
	"github.com/serenitybot/serenity/internal/gateway"
	"github.com/serenitybot/serenity/internal/logging"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

const (
	cliUserID     = "cli:local"
	missingKeyMsg = "AI API key not set. Run 'serenity onboard' or set GEMINI_API_KEY / ANTHROPIC_API_KEY / OPENAI_API_KEY"
)

// ChatOptions for running chat with custom dependencies
type ChatOptions struct {
	ClientFactory gateway.ClientFactory
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "serenity",
	Short: "serenity - a gentle wellness companion",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (API + web UI + channels + jobs)",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the companion in single message or REPL mode",
	RunE:  runChat,
}

var clashesCmd = &cobra.Command{
	Use:   "clashes",
	Short: "Check a weekly schedule for overlaps and tight travel gaps",
	RunE:  runClashes,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show serenity status",
	RunE:  runStatus,
}

var (
	messageFlag string
	styleFlag   string
	userFlag    string
	fileFlag    string
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVarP(&styleFlag, "style", "s", string(companion.StyleFriendly), "Reply style: friendly, mentor or coach")
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", cliUserID, "User id to read context for")
	clashesCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "JSON file with schedule items (default: the stored schedule)")
	clashesCmd.Flags().StringVarP(&userFlag, "user", "u", cliUserID, "User id whose stored schedule to check")
	rootCmd.AddCommand(serveCmd, chatCmd, clashesCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.AI.APIKey == "" {
		return errors.New(missingKeyMsg)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	restore := logging.Install(logger)
	defer restore()

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(cmd.Context())
}

// runChat is the command handler that uses default options
func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.ClientFactory
	if factory == nil {
		if cfg.AI.APIKey == "" {
			return errors.New(missingKeyMsg)
		}
		factory = gateway.DefaultClientFactory
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client, err := factory(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	svc := companion.NewService(client, st, nil)

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	style := companion.ParseStyle(styleFlag)
	say := func(text string) error {
		res, err := svc.Respond(ctx, userFlag, companion.Input{Text: text, Style: style})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.Reply)
		if res.Notice != "" {
			fmt.Fprintln(stdout, res.Notice)
		}
		return nil
	}

	// Single message mode
	if messageFlag != "" {
		if err := say(messageFlag); err != nil {
			return fmt.Errorf("chat error: %w", err)
		}
		return nil
	}

	// REPL mode
	fmt.Fprintf(stdout, "serenity chat, %s style (type 'exit' to quit)\n", style)
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if err := say(input); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	return nil
}

func runClashes(cmd *cobra.Command, args []string) error {
	items, err := loadScheduleItems(context.Background())
	if err != nil {
		return err
	}
	return printClashes(os.Stdout, items)
}

// loadScheduleItems reads --file when given, otherwise the stored schedule of --user.
func loadScheduleItems(ctx context.Context) ([]schedule.Item, error) {
	if fileFlag != "" {
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return nil, fmt.Errorf("read schedule file: %w", err)
		}
		var items []schedule.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse schedule file: %w", err)
		}
		for i := range items {
			if err := items[i].CanonicalDays(); err != nil {
				return nil, fmt.Errorf("schedule item %d %q: %w", i, items[i].Title, err)
			}
			items[i].ApplyDefaults()
		}
		return items, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return st.ListSchedule(ctx, userFlag)
}

func printClashes(w io.Writer, items []schedule.Item) error {
	violations, err := schedule.Detect(items)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		fmt.Fprintln(w, schedule.AllClearMessage)
		return nil
	}
	for _, v := range violations {
		fmt.Fprintln(w, v.Message())
	}
	return nil
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

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(context.Background(), cfg.DBPath())
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	_ = st.Close()

	fmt.Printf("Database ready: %s\n", cfg.DBPath())
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your AI key (or export GEMINI_API_KEY)\n", cfgPath)
	fmt.Println("  2. Run 'serenity chat -m \"Hello\"' to test")
	fmt.Println("  3. Run 'serenity serve' and open the web UI")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("AI: %s (%s)\n", cfg.AI.Provider, cfg.AI.ModelName())
	fmt.Printf("API Key: %s\n", maskKey(cfg.AI.APIKey))
	fmt.Printf("Identity: %s\n", cfg.Identity.Provider)
	fmt.Printf("Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)
	fmt.Printf("Jobs: letters=%q rollup=%q\n", cfg.Jobs.LettersDeliver, cfg.Jobs.ReportsRollup)

	if info, err := os.Stat(cfg.DBPath()); err != nil {
		fmt.Println("Database: not found (run 'serenity onboard')")
	} else {
		fmt.Printf("Database: %s (%d bytes)\n", cfg.DBPath(), info.Size())
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
