package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/homestead/pkg/vars"
)

// ErrorKind classifies an engine error by where it arises and how far it reaches.
type ErrorKind string

const (
	// KindTemplate indicates an undefined variable or malformed template.
	// Fatal to the action being rendered.
	KindTemplate ErrorKind = "template"

	// KindProviderUnavailable indicates the backend is missing and could not be bootstrapped.
	KindProviderUnavailable ErrorKind = "provider_unavailable"

	// KindRepository indicates a repository could not be queried or added.
	KindRepository ErrorKind = "repository"

	// KindInstall indicates the backend reported an installation failure.
	KindInstall ErrorKind = "install"

	// KindUnknownProvider indicates an action pinned a provider that is not registered.
	KindUnknownProvider ErrorKind = "unknown_provider"

	// KindNoDefaultProvider indicates the platform has no default provider.
	KindNoDefaultProvider ErrorKind = "no_default_provider"

	// KindUnknownDependency indicates a manifest depends on a manifest that was not loaded.
	KindUnknownDependency ErrorKind = "unknown_dependency"

	// KindDependencyCycle indicates the manifest dependency graph is cyclic.
	KindDependencyCycle ErrorKind = "dependency_cycle"

	// KindInvalidManifest indicates a manifest document failed to parse or validate.
	KindInvalidManifest ErrorKind = "invalid_manifest"

	// KindUnknownAction indicates an unrecognized action discriminator.
	KindUnknownAction ErrorKind = "unknown_action"

	// KindAction is the catch-all for action-specific failures
	// (file, link, directory, command, git).
	KindAction ErrorKind = "action"

	// KindPolicy indicates a blocking policy violation found before the run.
	KindPolicy ErrorKind = "policy"
)

// Sentinel errors for use with errors.Is.
var (
	ErrTemplate            = &EngineError{Kind: KindTemplate}
	ErrProviderUnavailable = &EngineError{Kind: KindProviderUnavailable}
	ErrRepository          = &EngineError{Kind: KindRepository}
	ErrInstall             = &EngineError{Kind: KindInstall}
	ErrUnknownProvider     = &EngineError{Kind: KindUnknownProvider}
	ErrNoDefaultProvider   = &EngineError{Kind: KindNoDefaultProvider}
	ErrUnknownDependency   = &EngineError{Kind: KindUnknownDependency}
	ErrDependencyCycle     = &EngineError{Kind: KindDependencyCycle}
	ErrInvalidManifest     = &EngineError{Kind: KindInvalidManifest}
	ErrUnknownAction       = &EngineError{Kind: KindUnknownAction}
	ErrAction              = &EngineError{Kind: KindAction}
	ErrPolicy              = &EngineError{Kind: KindPolicy}
)

// EngineError is a classified error enriched with the context it crossed.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Manifest is the manifest being loaded or executed, if applicable.
	Manifest string `json:"manifest,omitempty"`

	// Action is the index of the action within its manifest, or -1.
	Action int `json:"action"`

	// Provider is the package provider involved, if applicable.
	Provider string `json:"provider,omitempty"`

	// Step names the protocol step that failed (bootstrap, repository, install, ...).
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	// Install failures carry the backend's diagnostics verbatim.
	if e.Kind == KindInstall && e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}

	var sb strings.Builder
	sb.WriteString(e.Message)

	var ctx []string
	if e.Manifest != "" {
		ctx = append(ctx, "manifest="+e.Manifest)
	}
	if e.Action >= 0 && e.Manifest != "" {
		ctx = append(ctx, fmt.Sprintf("action=%d", e.Action))
	}
	if e.Provider != "" {
		ctx = append(ctx, "provider="+e.Provider)
	}
	if e.Step != "" {
		ctx = append(ctx, "step="+e.Step)
	}
	if len(ctx) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("(" + strings.Join(ctx, ", ") + ")")
	}
	if e.Err != nil {
		if sb.Len() > 0 {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new classified error.
func NewError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Message: message,
		Action:  -1,
		Err:     err,
	}
}

// NewTemplateError wraps a rendering failure.
func NewTemplateError(err error) *EngineError {
	return NewError(KindTemplate, "template error", err)
}

// NewInstallError wraps a backend install failure without rewriting its message.
func NewInstallError(err error) *EngineError {
	return NewError(KindInstall, "", err)
}

// WithManifest adds manifest context to an error.
func (e *EngineError) WithManifest(name string) *EngineError {
	e.Manifest = name
	return e
}

// WithAction adds the action index to an error.
func (e *EngineError) WithAction(index int) *EngineError {
	e.Action = index
	return e
}

// WithProvider adds provider context to an error.
func (e *EngineError) WithProvider(name string) *EngineError {
	e.Provider = name
	return e
}

// WithStep adds the failing protocol step to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// KindOf returns the classification of err. Template errors raised directly
// by the vars package are reported as KindTemplate; unclassified errors as KindAction.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	var tmplErr *vars.TemplateError
	if errors.As(err, &tmplErr) {
		return KindTemplate
	}
	return KindAction
}

// IsLoadError returns true for errors that abort a run before any action executes.
func IsLoadError(err error) bool {
	switch KindOf(err) {
	case KindUnknownDependency, KindDependencyCycle, KindInvalidManifest, KindUnknownAction, KindPolicy:
		var e *EngineError
		return errors.As(err, &e)
	default:
		return false
	}
}

// Enrich attaches manifest and action context to err. EngineErrors are
// annotated in place unless they already carry a manifest; other errors are
// wrapped with their classified kind.
func Enrich(err error, manifest string, action int) error {
	if err == nil {
		return nil
	}
	var e *EngineError
	if errors.As(err, &e) {
		if e.Manifest == "" {
			e.Manifest = manifest
			e.Action = action
		}
		return err
	}
	return NewError(KindOf(err), "", err).WithManifest(manifest).WithAction(action)
}
