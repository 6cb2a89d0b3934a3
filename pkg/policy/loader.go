package policy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads policies from files and directories.
//
// A .rego file is one policy named after the file. Leading comments become
// its description; a "# severity: <level>" comment sets its severity, which
// otherwise defaults to warning. A .yaml file holds one policy definition
// with inline Rego.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFromPaths loads policies from a list of file or directory paths.
// Any unreadable or malformed policy file fails the whole load.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var allPolicies []Policy

	for _, path := range paths {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("invalid policy path %s: %w", path, err)
		}
		policies, err := l.loadFromPath(ctx, expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		allPolicies = append(allPolicies, policies...)
	}

	l.logger.Debug().
		Int("total", len(allPolicies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return allPolicies, nil
}

// loadFromPath loads policies from a single path (file or directory).
func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}

	return []Policy{*policy}, nil
}

// loadFromDirectory loads all policy files from a directory recursively.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		policy, err := l.loadFromFile(path)
		if err != nil {
			return err
		}

		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// loadFromFile loads a policy from a single file.
func (l *Loader) loadFromFile(filePath string) (*Policy, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy

	// Determine file type and parse accordingly
	switch filepath.Ext(filePath) {
	case ".rego":
		policy, err = parseRegoFile(filePath, data)
	case ".yaml", ".yml":
		policy, err = parseYAMLFile(filePath, data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	l.logger.Debug().
		Str("path", filePath).
		Str("policy", policy.Name).
		Msg("Policy loaded from file")

	return policy, nil
}

// parseRegoFile parses a .rego file into a Policy.
func parseRegoFile(filePath string, data []byte) (*Policy, error) {
	content := string(data)
	description, severity := extractMetadata(content)

	policy := &Policy{
		Name:        strings.TrimSuffix(filepath.Base(filePath), ".rego"),
		Description: description,
		Rego:        content,
		Severity:    SeverityWarning,
		Enabled:     true,
		Source:      filePath,
	}
	if severity != "" {
		policy.Severity = severity
	}
	return policy, policy.validate()
}

// policyFile is the YAML policy definition.
type policyFile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Severity    Severity `yaml:"severity"`
	Enabled     *bool    `yaml:"enabled"`
	Rego        string   `yaml:"rego"`
}

// parseYAMLFile parses a YAML policy definition.
func parseYAMLFile(filePath string, data []byte) (*Policy, error) {
	var def policyFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	policy := &Policy{
		Name:        def.Name,
		Description: def.Description,
		Rego:        def.Rego,
		Severity:    def.Severity,
		Enabled:     def.Enabled == nil || *def.Enabled,
		Source:      filePath,
	}

	// Set defaults if not specified
	if policy.Name == "" {
		policy.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}

	return policy, policy.validate()
}

func (p *Policy) validate() error {
	switch p.Severity {
	case SeverityInfo, SeverityWarning, SeverityError:
	default:
		return fmt.Errorf("invalid severity %q", p.Severity)
	}
	if strings.TrimSpace(p.Rego) == "" {
		return fmt.Errorf("policy %s has no rego", p.Name)
	}
	return nil
}

// extractMetadata extracts the description and severity from leading Rego comments.
func extractMetadata(content string) (string, Severity) {
	var (
		description strings.Builder
		severity    Severity
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			// Stop at first non-comment, non-empty line
			break
		}

		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if level, ok := strings.CutPrefix(comment, "severity:"); ok {
			severity = Severity(strings.TrimSpace(level))
			continue
		}
		if comment != "" {
			if description.Len() > 0 {
				description.WriteString(" ")
			}
			description.WriteString(comment)
		}
	}

	return description.String(), severity
}
