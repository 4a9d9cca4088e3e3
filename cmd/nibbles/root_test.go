package nibbles

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saadjs/nibbles/internal/auth"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for key, value := range map[string]string{
		"STORAGE_DRIVER":     "sqlite",
		"DATABASE_PATH":      "",
		"OPENAI_API_KEY":     "",
		"REDIS_ADDR":         "",
		"TELEGRAM_BOT_TOKEN": "",
		"WEBAPP_ENABLED":     "false",
		"TIMEZONE":           "UTC",
		"LOG_LEVEL":          "error",
	} {
		t.Setenv(key, value)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRootHelp(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("execute root help: %v", err)
	}
	if !strings.Contains(out, "serve") {
		t.Fatalf("expected help output listing commands, got:\n%s", out)
	}
}

func TestInitCommandIdempotent(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nibbles.db")
	for i := 0; i < 2; i++ {
		out := mustRun(t, "--db", path, "init")
		if !strings.Contains(out, "Initialized nibbles database at "+path) {
			t.Fatalf("init run %d: unexpected output %q", i+1, out)
		}
	}
}

func TestProfileLogAndToday(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "nibbles.db")

	if out, err := run(t, "--db", db, "--user", "99", "profile"); err == nil || !strings.Contains(err.Error(), "profile onboard") {
		t.Fatalf("expected onboarding hint for a new user, got %v\n%s", err, out)
	}

	out := mustRun(t, "--db", db, "--user", "7", "profile", "onboard",
		"--weight", "75", "--height", "176", "--age", "25", "--sex", "male", "--activity", "sedentary", "--goal", "maintain")
	if !strings.Contains(out, "Daily target: 2076 kcal") {
		t.Fatalf("unexpected onboarding output %q", out)
	}

	out = mustRun(t, "--db", db, "--user", "7", "log", "--manual", "--name", "Protein bar",
		"--calories", "210", "--protein", "20", "--carbs", "22", "--fat", "7")
	if !strings.Contains(out, "Logged #1: Protein bar") || !strings.Contains(out, "210 kcal") {
		t.Fatalf("unexpected log output %q", out)
	}

	out = mustRun(t, "--db", db, "--user", "7", "today")
	if !strings.Contains(out, "Calories: 210 / 2076 kcal (1866 remaining)") || !strings.Contains(out, "Protein bar") {
		t.Fatalf("unexpected today output:\n%s", out)
	}

	out = mustRun(t, "--db", db, "--user", "7", "pet")
	if !strings.Contains(out, "Meals logged: 1") {
		t.Fatalf("unexpected pet output:\n%s", out)
	}

	out = mustRun(t, "--db", db, "--user", "7", "achievements")
	if !strings.Contains(out, "Achievements: 1/") {
		t.Fatalf("expected the first meal achievement, got:\n%s", out)
	}

	if out := mustRun(t, "--db", db, "--user", "7", "meal", "delete", "1"); !strings.Contains(out, "Deleted meal #1") {
		t.Fatalf("unexpected delete output %q", out)
	}
	if _, err := run(t, "--db", db, "--user", "7", "meal", "delete", "1"); err == nil {
		t.Fatalf("expected deleting a missing meal to fail")
	}
}

func TestFlagsCommand(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "nibbles.db")

	out := mustRun(t, "--db", db, "flags")
	if !strings.Contains(out, "daily_reminder") || !strings.Contains(out, "weekly_summary") {
		t.Fatalf("unexpected flags output:\n%s", out)
	}
	if out := mustRun(t, "--db", db, "flags", "set", "daily_reminder", "on"); !strings.Contains(out, "daily_reminder is now on") {
		t.Fatalf("unexpected set output %q", out)
	}
	if _, err := run(t, "--db", db, "flags", "set", "dark_mode", "on"); err == nil {
		t.Fatalf("expected unknown flag to fail")
	}
	if _, err := run(t, "--db", db, "flags", "set", "daily_reminder", "maybe"); err == nil {
		t.Fatalf("expected bad value to fail")
	}
}

func TestTokenCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", "cli-secret")

	out := mustRun(t, "--user", "42", "token")
	tok := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	tokens, err := auth.NewTokenManager("cli-secret", 0)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	id, err := tokens.Validate(tok)
	if err != nil || id != 42 {
		t.Fatalf("expected a token for user 42, got %d %v", id, err)
	}
}

func TestDoctorCommand(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "nibbles.db")
	out := mustRun(t, "--db", db, "doctor")
	for _, want := range []string{"[ok  ] storage         sqlite " + db, "[FAIL] food analysis   OPENAI_API_KEY not set", "timezone        UTC"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q:\n%s", want, out)
		}
	}
}
