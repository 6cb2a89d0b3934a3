package packages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/process"
)

// verifyKey checks that the key file at keyPath carries the fingerprint the
// repository declares. Keys without a declared fingerprint are trusted as
// downloaded.
func verifyKey(ctx context.Context, runner process.Runner, keyPath string, repo *engine.Repository) error {
	if repo.Key == nil || repo.Key.Fingerprint == "" {
		return nil
	}
	result, err := runner.Run(ctx, process.Command{
		Name: "gpg",
		Args: []string{"--show-keys", "--with-colons", keyPath},
	})
	if err != nil {
		return fmt.Errorf("failed to read key for %s: %w", repo.Name, err)
	}

	want := normalizeFingerprint(repo.Key.Fingerprint)
	got := primaryFingerprints(result.Stdout)
	for _, fpr := range got {
		if fpr == want {
			return nil
		}
	}
	found := "none"
	if len(got) > 0 {
		found = strings.Join(got, ", ")
	}
	return fmt.Errorf("key for %s fingerprint mismatch: want %s, got %s", repo.Name, want, found)
}

// primaryFingerprints extracts the primary key fingerprints from gpg
// --with-colons output. Subkey fingerprints are skipped.
func primaryFingerprints(listing string) []string {
	var (
		fingerprints []string
		primary      bool
	)
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ":")
		switch fields[0] {
		case "pub":
			primary = true
		case "sub", "ssb", "uid":
			primary = false
		case "fpr":
			if primary && len(fields) > 9 && fields[9] != "" {
				fingerprints = append(fingerprints, normalizeFingerprint(fields[9]))
				primary = false
			}
		}
	}
	return fingerprints
}

func normalizeFingerprint(fpr string) string {
	fpr = strings.TrimPrefix(strings.TrimPrefix(fpr, "0x"), "0X")
	return strings.ToUpper(strings.ReplaceAll(fpr, " ", ""))
}

// importRPMKey imports a repository signing key into the rpm database.
// Keys with a declared fingerprint are downloaded and checked before rpm
// ever sees them.
func importRPMKey(ctx context.Context, runner process.Runner, repo *engine.Repository) error {
	source := repo.Key.URL
	if repo.Key.Fingerprint != "" {
		source = filepath.Join(os.TempDir(), "homestead-"+sanitizeName(repo.Name)+".key")
		defer os.Remove(source)
		if _, err := runner.Run(ctx, process.Command{
			Name: "curl",
			Args: []string{"-fsSL", "-o", source, repo.Key.URL},
		}); err != nil {
			return fmt.Errorf("failed to download key for %s: %w", repo.Name, err)
		}
		if err := verifyKey(ctx, runner, source, repo); err != nil {
			return err
		}
	}
	_, err := runner.Run(ctx, process.Command{
		Name:       "rpm",
		Args:       []string{"--import", source},
		Privileged: true,
	})
	return err
}

// discardKey removes a downloaded key that failed verification.
func discardKey(ctx context.Context, runner process.Runner, keyPath string, cause error) error {
	_, err := runner.Run(ctx, process.Command{
		Name:       "rm",
		Args:       []string{"-f", keyPath},
		Privileged: true,
	})
	return errors.Join(cause, err)
}
