package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, ok := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if ok {
				_ = os.Setenv(k, prev)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return p
}

func TestValidateEnvironment_AllPresent(t *testing.T) {
	t.Setenv("XMTP_ENV", "dev")
	t.Setenv("PORT", " 3000 ")

	got, err := ValidateEnvironment([]string{"XMTP_ENV", "PORT"}, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("ValidateEnvironment: %v", err)
	}
	want := map[string]string{"XMTP_ENV": "dev", "PORT": "3000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestValidateEnvironment_FillsMissingFromFile(t *testing.T) {
	unsetEnv(t, "GM_TEST_A", "GM_TEST_B")
	t.Setenv("GM_TEST_C", "from-process")

	p := writeEnvFile(t, "# comment line\n\nGM_TEST_A=alpha\nGM_TEST_B=beta=gamma\nGM_TEST_C=from-file\n")

	got, err := ValidateEnvironment([]string{"GM_TEST_A", "GM_TEST_B", "GM_TEST_C"}, p)
	if err != nil {
		t.Fatalf("ValidateEnvironment: %v", err)
	}
	if got["GM_TEST_A"] != "alpha" {
		t.Fatalf("GM_TEST_A=%q", got["GM_TEST_A"])
	}
	if got["GM_TEST_B"] != "beta=gamma" {
		t.Fatalf("GM_TEST_B=%q, want value with '=' preserved", got["GM_TEST_B"])
	}
	if got["GM_TEST_C"] != "from-process" {
		t.Fatalf("process env should win, got %q", got["GM_TEST_C"])
	}
}

func TestValidateEnvironment_EmptyValueCountsAsMissing(t *testing.T) {
	t.Setenv("GM_TEST_EMPTY", "")
	p := writeEnvFile(t, "GM_TEST_EMPTY=filled\n")

	got, err := ValidateEnvironment([]string{"GM_TEST_EMPTY"}, p)
	if err != nil {
		t.Fatalf("ValidateEnvironment: %v", err)
	}
	if got["GM_TEST_EMPTY"] != "filled" {
		t.Fatalf("got %q, want filled", got["GM_TEST_EMPTY"])
	}
}

func TestValidateEnvironment_ReportsStillMissing(t *testing.T) {
	unsetEnv(t, "GM_TEST_X", "GM_TEST_Y", "GM_TEST_Z")
	p := writeEnvFile(t, "GM_TEST_Y=present\n")

	_, err := ValidateEnvironment([]string{"GM_TEST_X", "GM_TEST_Y", "GM_TEST_Z"}, p)
	var missing *MissingEnvError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingEnvError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Vars, []string{"GM_TEST_X", "GM_TEST_Z"}) {
		t.Fatalf("unexpected missing vars: %#v", missing.Vars)
	}
	if err.Error() != "missing env vars: GM_TEST_X, GM_TEST_Z" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestValidateEnvironment_DotEnvDisabled(t *testing.T) {
	unsetEnv(t, "GM_TEST_D")
	t.Setenv("XMTP_DOTENV", "off")
	p := writeEnvFile(t, "GM_TEST_D=ignored\n")

	if _, err := ValidateEnvironment([]string{"GM_TEST_D"}, p); err == nil {
		t.Fatalf("expected missing error when dotenv is disabled")
	}
}

func TestRequireOneOf(t *testing.T) {
	if err := RequireOneOf("XMTP_ENV", "Dev", "local", "dev", "production"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RequireOneOf("XMTP_ENV", "staging", "local", "dev", "production"); err == nil {
		t.Fatalf("expected error for unknown value")
	}
}
