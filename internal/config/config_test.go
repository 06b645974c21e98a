package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const validConfig = `
api_base_url: "http://api.local/"
telegram_bot_token: "123:abc"
telegram_channel_id: "@channel"
yahoo_ranking_base_urls:
  - "https://news.yahoo.co.jp/ranking/access/news"
openai_api_key: "sk-test"
openai_model: "gpt-4o-mini"
skip_keywords: ["  Sports ", "", "娱乐"]
authorized_user_ids: [111, 222]
custom_key: 7
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestLoad_DefaultsAndNormalization(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	root, _, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if root.APIBaseURL != "http://api.local" {
		t.Errorf("APIBaseURL = %q", root.APIBaseURL)
	}
	if root.PostedArticlesFile != "data/posted_articles.json" {
		t.Errorf("PostedArticlesFile = %q", root.PostedArticlesFile)
	}
	if root.ScheduleIntervalMinutes != 10 || root.OpenAIMaxTokens != 1000 || root.OpenAITemperature != 0.7 {
		t.Errorf("defaults not applied: %+v", root)
	}
	if root.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q", root.LogLevel)
	}
	if root.EnrichBackend != EnrichOpenAI {
		t.Errorf("EnrichBackend = %q, want openai", root.EnrichBackend)
	}
	if root.PublishFailurePolicy != PublishFailureRecord {
		t.Errorf("PublishFailurePolicy = %q", root.PublishFailurePolicy)
	}
	if want := []string{"sports", "娱乐"}; !reflect.DeepEqual(root.SkipKeywords, want) {
		t.Errorf("SkipKeywords = %v, want %v", root.SkipKeywords, want)
	}
}

func TestLoad_MissingRequiredKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log_level: INFO\n")

	_, _, err := load(path, noEnv)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("load() error = %v, want *ConfigurationError", err)
	}

	want := []string{"api_base_url", "telegram_bot_token", "telegram_channel_id", "yahoo_ranking_base_urls", "gemini_api_key"}
	if !reflect.DeepEqual(cfgErr.Missing, want) {
		t.Errorf("Missing = %v, want %v", cfgErr.Missing, want)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	body := validConfig + "publish_failure_policy: sometimes\nledger_backend: mongo\n"
	path := writeConfig(t, t.TempDir(), body)

	_, _, err := load(path, noEnv)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("load() error = %v, want *ConfigurationError", err)
	}
	if len(cfgErr.Invalid) != 2 {
		t.Errorf("Invalid = %v, want 2 entries", cfgErr.Invalid)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	body := `
api_base_url: "http://api.local"
telegram_channel_id: "@channel"
yahoo_ranking_base_urls: ["https://r"]
enrich_backend: gemini
`
	path := writeConfig(t, t.TempDir(), body)
	env := map[string]string{
		EnvTelegramBotToken: "env-token",
		EnvGeminiAPIKey:     "env-gemini",
	}

	root, _, err := load(path, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if root.TelegramBotToken != "env-token" || root.GeminiAPIKey != "env-gemini" {
		t.Errorf("env not applied: token=%q gemini=%q", root.TelegramBotToken, root.GeminiAPIKey)
	}
}

func TestStore_GetHelpers(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)
	store, err := open(path, noEnv, nil)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}

	if got := Strings(store, "skip_keywords", nil); !reflect.DeepEqual(got, []string{"sports", "娱乐"}) {
		t.Errorf("Strings(skip_keywords) = %v", got)
	}
	if got := Int64s(store, "authorized_user_ids", nil); !reflect.DeepEqual(got, []int64{111, 222}) {
		t.Errorf("Int64s(authorized_user_ids) = %v", got)
	}
	if got := Int(store, "schedule_interval_minutes", 0); got != 10 {
		t.Errorf("Int(schedule_interval_minutes) = %d", got)
	}
	if got := Int(store, "custom_key", 0); got != 7 {
		t.Errorf("Int(custom_key) = %d", got)
	}
	if got := Float(store, "openai_temperature", 0); got != 0.7 {
		t.Errorf("Float(openai_temperature) = %v", got)
	}
	if got := String(store, "missing", "fallback"); got != "fallback" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := store.Get("missing", 42); got != 42 {
		t.Errorf("Get(missing) = %v", got)
	}
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)
	store, err := open(path, noEnv, nil)
	if err != nil {
		t.Fatal(err)
	}

	var reloaded []Root
	store.OnReload(func(r Root) { reloaded = append(reloaded, r) })

	writeConfig(t, dir, validConfig+"schedule_interval_minutes: 3\n")
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := Int(store, "schedule_interval_minutes", 0); got != 3 {
		t.Errorf("interval after reload = %d, want 3", got)
	}
	if len(reloaded) != 1 {
		t.Errorf("OnReload called %d times, want 1", len(reloaded))
	}

	writeConfig(t, dir, "api_base_url: [broken")
	if err := store.Reload(); err == nil {
		t.Fatal("Reload() expected error for broken file")
	}
	if got := Int(store, "schedule_interval_minutes", 0); got != 3 {
		t.Errorf("interval after failed reload = %d, want 3", got)
	}
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)
	store, err := open(path, noEnv, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, 50*time.Millisecond) }()
	defer func() {
		cancel()
		<-done
	}()

	// Даём наблюдателю подписаться на каталог.
	time.Sleep(200 * time.Millisecond)
	updated := strings.Replace(validConfig, `skip_keywords: ["  Sports ", "", "娱乐"]`, `skip_keywords: ["Cat"]`, 1)
	writeConfig(t, dir, updated)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := Strings(store, "skip_keywords", nil); reflect.DeepEqual(got, []string{"cat"}) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("skip_keywords not reloaded: %v", Strings(store, "skip_keywords", nil))
}

func TestStatic(t *testing.T) {
	p := Static{"skip_keywords": []string{"a"}, "n": 5}
	if got := Strings(p, "skip_keywords", nil); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Strings() = %v", got)
	}
	if got := Int(p, "n", 0); got != 5 {
		t.Errorf("Int() = %d", got)
	}
	if got := Bool(p, "absent", true); !got {
		t.Error("Bool() default not returned")
	}
}
