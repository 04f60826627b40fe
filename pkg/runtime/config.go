package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// MissingEnvError lists required variables that were not set.
type MissingEnvError struct {
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return "missing env vars: " + strings.Join(e.Vars, ", ")
}

// ValidateEnvironment checks that every name in vars is set to a non-empty
// value. When some are missing it reads envFiles (default ".env") and fills
// only the missing ones, then checks again.
func ValidateEnvironment(vars []string, envFiles ...string) (map[string]string, error) {
	missing := missingVars(vars)
	if len(missing) > 0 && !IsDotEnvDisabled() {
		if len(envFiles) == 0 {
			envFiles = []string{".env"}
		}
		if err := fillFromFiles(missing, envFiles); err != nil {
			return nil, err
		}
		missing = missingVars(vars)
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Vars: missing}
	}

	out := make(map[string]string, len(vars))
	for _, v := range vars {
		out[v] = strings.TrimSpace(os.Getenv(v))
	}
	return out, nil
}

func fillFromFiles(missing, files []string) error {
	for _, f := range files {
		values, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", f, err)
		}
		for _, k := range missing {
			if strings.TrimSpace(os.Getenv(k)) != "" {
				continue
			}
			if v := strings.TrimSpace(values[k]); v != "" {
				if err := os.Setenv(k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func missingVars(vars []string) []string {
	var missing []string
	for _, v := range vars {
		if strings.TrimSpace(os.Getenv(v)) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// RequireOneOf returns an error unless v is one of allowed (case-insensitive).
func RequireOneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(v), a) {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (want one of %s)", name, v, strings.Join(allowed, ", "))
}
