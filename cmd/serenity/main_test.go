package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/config"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

type mockClient struct {
	reply    string
	replyErr error
	closed   bool
}

func (m *mockClient) Reply(ctx context.Context, p companion.Prompt) (string, error) {
	return m.reply + " (" + string(p.Style) + ")", m.replyErr
}

func (m *mockClient) ReflectMood(ctx context.Context, line string) (string, error) {
	return "", nil
}

func (m *mockClient) Affirmation(ctx context.Context, hint string) (string, error) {
	return "You are enough.", nil
}

func (m *mockClient) ClassifyCrisis(ctx context.Context, text string) (companion.Crisis, error) {
	if strings.Contains(text, "hopeless") {
		return companion.Crisis{Risk: companion.RiskHigh}, nil
	}
	return companion.Crisis{Risk: companion.RiskNone}, nil
}

func (m *mockClient) SummarizeAudio(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "", nil
}

func (m *mockClient) Close() { m.closed = true }

func mockFactory(c companion.Client) func(ctx context.Context, cfg *config.Config) (companion.Client, error) {
	return func(ctx context.Context, cfg *config.Config) (companion.Client, error) {
		return c, nil
	}
}

// isolate points HOME at a temp dir and clears every env override.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{
		"SERENITY_AI_PROVIDER", "SERENITY_AI_API_KEY", "SERENITY_AI_MODEL",
		"GEMINI_API_KEY", "GOOGLE_API_KEY",
		"ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "OPENAI_API_KEY",
		"SERENITY_DB_PATH", "SERENITY_TELEGRAM_TOKEN",
	} {
		t.Setenv(k, "")
	}
	return home
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func setFlag(t *testing.T, p *string, v string) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestInit(t *testing.T) {
	for _, name := range []string{"serve", "chat", "clashes", "onboard", "status"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"message", "style", "user"} {
		if chatCmd.Flags().Lookup(flag) == nil {
			t.Errorf("chat flag %q should exist", flag)
		}
	}
	if clashesCmd.Flags().Lookup("file") == nil {
		t.Error("clashes --file flag should exist")
	}
}

func TestRunServe_NoAPIKey(t *testing.T) {
	isolate(t)

	err := runServe(&cobra.Command{}, []string{})
	if err == nil {
		t.Fatal("expected error when API key is not set")
	}
	if !strings.Contains(err.Error(), "API key not set") {
		t.Errorf("error should mention API key: %v", err)
	}
}

func TestRunChat_NoAPIKey(t *testing.T) {
	isolate(t)

	err := runChat(&cobra.Command{}, []string{})
	if err == nil || !strings.Contains(err.Error(), "API key not set") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestRunChatWithOptions_SingleMessage(t *testing.T) {
	home := isolate(t)
	setFlag(t, &messageFlag, "I feel hopeless today")
	setFlag(t, &styleFlag, "coach")

	client := &mockClient{reply: "I hear you."}
	var stdout bytes.Buffer
	err := runChatWithOptions(ChatOptions{
		ClientFactory: mockFactory(client),
		Stdout:        &stdout,
	})
	if err != nil {
		t.Fatalf("runChatWithOptions error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "I hear you. (coach)") {
		t.Errorf("expected styled reply, got: %s", out)
	}
	if !strings.Contains(out, companion.HelplineMessage) {
		t.Errorf("expected helpline notice, got: %s", out)
	}
	if !client.closed {
		t.Error("client should be closed")
	}
	if _, err := os.Stat(filepath.Join(home, ".serenity", "data", "serenity.db")); err != nil {
		t.Errorf("database should be created: %v", err)
	}
}

func TestRunChatWithOptions_SingleMessageError(t *testing.T) {
	isolate(t)
	setFlag(t, &messageFlag, "hello")

	err := runChatWithOptions(ChatOptions{
		ClientFactory: mockFactory(&mockClient{replyErr: errors.New("model down")}),
		Stdout:        io.Discard,
	})
	if err == nil || !strings.Contains(err.Error(), "model down") {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestRunChatWithOptions_REPLMode(t *testing.T) {
	isolate(t)
	setFlag(t, &messageFlag, "")
	setFlag(t, &styleFlag, "mentor")

	var stdout, stderr bytes.Buffer
	err := runChatWithOptions(ChatOptions{
		ClientFactory: mockFactory(&mockClient{reply: "REPL response"}),
		Stdin:         strings.NewReader("hello\n\n   \nquit\nnever read\n"),
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err != nil {
		t.Fatalf("runChatWithOptions error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "serenity chat, mentor style") {
		t.Errorf("expected REPL banner, got: %s", out)
	}
	if strings.Count(out, "REPL response (mentor)") != 1 {
		t.Errorf("expected exactly one reply, got: %s", out)
	}
	if stderr.Len() != 0 {
		t.Errorf("unexpected stderr: %s", stderr.String())
	}
}

func TestRunChatWithOptions_REPLError(t *testing.T) {
	isolate(t)
	setFlag(t, &messageFlag, "")

	var stdout, stderr bytes.Buffer
	err := runChatWithOptions(ChatOptions{
		ClientFactory: mockFactory(&mockClient{replyErr: errors.New("boom")}),
		Stdin:         strings.NewReader("hi\nexit\n"),
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err != nil {
		t.Fatalf("REPL should survive reply errors: %v", err)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Errorf("expected error on stderr, got: %s", stderr.String())
	}
}

func writeItems(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "week.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunClashes_File(t *testing.T) {
	isolate(t)
	setFlag(t, &fileFlag, writeItems(t, `[
		{"title":"Math","days":["Mon"],"start_time":"09:00","end_time":"10:00"},
		{"title":"Art","days":["Mon"],"start_time":"09:30","end_time":"10:30"}
	]`))

	out, err := captureStdout(t, func() error { return runClashes(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runClashes error: %v", err)
	}
	if !strings.Contains(out, "'Math' and 'Art' overlap") {
		t.Errorf("expected overlap line, got: %s", out)
	}
}

func TestRunClashes_FileDayTokens(t *testing.T) {
	isolate(t)
	for _, days := range []string{`["mon"]`, `["Monday"]`, `["Mon","Mon"]`} {
		setFlag(t, &fileFlag, writeItems(t, `[
			{"title":"A","days":`+days+`,"start_time":"18:00","end_time":"19:00"},
			{"title":"B","days":["Mon"],"start_time":"18:30","end_time":"19:30"}
		]`))

		out, err := captureStdout(t, func() error { return runClashes(&cobra.Command{}, nil) })
		if err != nil {
			t.Fatalf("days %s: runClashes error: %v", days, err)
		}
		if n := strings.Count(out, "'A' and 'B' overlap"); n != 1 {
			t.Errorf("days %s: overlap reported %d times, want 1:\n%s", days, n, out)
		}
		if strings.Contains(out, "'A' and 'A'") || strings.Contains(out, "'A' → 'A'") {
			t.Errorf("days %s: item clashed with itself:\n%s", days, out)
		}
	}
}

func TestRunClashes_FileBadDay(t *testing.T) {
	isolate(t)
	setFlag(t, &fileFlag, writeItems(t, `[{"title":"Gym","days":["Someday"],"start_time":"09:00","end_time":"10:00"}]`))

	err := runClashes(&cobra.Command{}, nil)
	var verr *schedule.ValidationError
	if !errors.As(err, &verr) || verr.Field != "days" {
		t.Errorf("expected days ValidationError, got %v", err)
	}
}

func TestRunClashes_FileMalformed(t *testing.T) {
	isolate(t)
	setFlag(t, &fileFlag, writeItems(t, `[{"title":"Gym","days":["Tue"],"start_time":"9am","end_time":"10:00"}]`))

	_, err := captureStdout(t, func() error { return runClashes(&cobra.Command{}, nil) })
	var mt *schedule.MalformedTimeError
	if !errors.As(err, &mt) {
		t.Fatalf("expected MalformedTimeError, got %v", err)
	}
	if mt.Title != "Gym" || mt.Field != "start_time" {
		t.Errorf("error = %+v", mt)
	}
}

func TestRunClashes_BadJSON(t *testing.T) {
	isolate(t)
	setFlag(t, &fileFlag, writeItems(t, `{not json`))

	if err := runClashes(&cobra.Command{}, nil); err == nil || !strings.Contains(err.Error(), "parse schedule file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestRunClashes_StoredSchedule(t *testing.T) {
	home := isolate(t)
	setFlag(t, &fileFlag, "")
	setFlag(t, &userFlag, "cli:local")

	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(home, ".serenity", "data", "serenity.db"))
	if err != nil {
		t.Fatal(err)
	}
	it, err := schedule.NewItem("Piano", []string{"sat"}, "10:00", "11:00")
	if err != nil {
		t.Fatal(err)
	}
	it.ApplyDefaults()
	if _, err := st.AddScheduleItem(ctx, "cli:local", it); err != nil {
		t.Fatal(err)
	}
	st.Close()

	out, err := captureStdout(t, func() error { return runClashes(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runClashes error: %v", err)
	}
	if strings.TrimSpace(out) != schedule.AllClearMessage {
		t.Errorf("expected all clear, got: %s", out)
	}
}

func TestRunOnboard(t *testing.T) {
	home := isolate(t)

	out, err := captureStdout(t, func() error { return runOnboard(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runOnboard error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".serenity", "config.json")); err != nil {
		t.Error("config file was not created")
	}
	if _, err := os.Stat(filepath.Join(home, ".serenity", "data", "serenity.db")); err != nil {
		t.Error("database was not created")
	}
	if !strings.Contains(out, "Created config") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = captureStdout(t, func() error { return runOnboard(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("second runOnboard error: %v", err)
	}
	if !strings.Contains(out, "Config already exists") {
		t.Errorf("second run should keep the config, got: %s", out)
	}
}

func TestRunStatus(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "AIzaSyTest1234567890")

	out, err := captureStdout(t, func() error { return runStatus(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("runStatus error: %v", err)
	}
	for _, want := range []string{"AI: gemini", "API Key: AIza...7890", "Identity: local", "Database: not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "AIzaSyTest1234567890") {
		t.Error("API key must be masked")
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "not set"},
		{"short", "set"},
		{"sk-ant-1234567890", "sk-a...7890"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
