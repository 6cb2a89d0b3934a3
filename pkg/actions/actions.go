// Package actions implements the action variants a manifest can declare
// and decodes them from YAML.
package actions

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/homestead/pkg/engine"
)

// Action kinds.
const (
	KindPackageInstall    = "package.install"
	KindPackageRepository = "package.repository"
	KindFileCopy          = "file.copy"
	KindFileLink          = "file.link"
	KindDirectoryCreate   = "directory.create"
	KindCommandRun        = "command.run"
	KindGitClone          = "git.clone"
)

// kinds is the closed table of decodable actions.
var kinds = map[string]func() engine.Action{
	KindPackageInstall:    func() engine.Action { return &PackageInstall{} },
	KindPackageRepository: func() engine.Action { return &PackageRepository{} },
	KindFileCopy:          func() engine.Action { return &FileCopy{} },
	KindFileLink:          func() engine.Action { return &FileLink{} },
	KindDirectoryCreate:   func() engine.Action { return &DirectoryCreate{} },
	KindCommandRun:        func() engine.Action { return &CommandRun{} },
	KindGitClone:          func() engine.Action { return &GitClone{} },
}

var validate = validator.New()

// Kinds returns the decodable action kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Decode builds an action from a YAML mapping keyed by its "action" field.
func Decode(node *yaml.Node) (engine.Action, error) {
	if node.Kind != yaml.MappingNode {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: action must be a mapping", node.Line), nil)
	}

	var header struct {
		Action string `yaml:"action"`
	}
	if err := node.Decode(&header); err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: invalid action", node.Line), err)
	}
	if header.Action == "" {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: action kind is required", node.Line), nil)
	}

	factory, ok := kinds[header.Action]
	if !ok {
		return nil, engine.NewError(engine.KindUnknownAction,
			fmt.Sprintf("unrecognized action kind %q", header.Action), nil)
	}

	action := factory()
	if err := checkFields(node, decodeTarget(action), "action"); err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("invalid %s action", header.Action), err)
	}
	if err := node.Decode(action); err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: invalid %s action", node.Line, header.Action), err)
	}
	if err := validate.Struct(action); err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: invalid %s action", node.Line, header.Action), err)
	}

	return action, nil
}

// fieldDecoder is implemented by actions that decode through an
// intermediate struct; its fields are the keys the action accepts.
type fieldDecoder interface {
	yamlFields() any
}

func decodeTarget(action engine.Action) reflect.Type {
	if d, ok := action.(fieldDecoder); ok {
		return reflect.TypeOf(d.yamlFields())
	}
	return reflect.TypeOf(action)
}

// checkFields rejects mapping keys that t does not decode, descending into
// nested structs. allowed lists extra keys accepted at this level.
func checkFields(node *yaml.Node, t reflect.Type, allowed ...string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if node.Kind != yaml.MappingNode || t.Kind() != reflect.Struct {
		return nil
	}

	fields := make(map[string]reflect.Type)
	yamlFields(t, fields)
	for _, name := range allowed {
		fields[name] = nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		ft, ok := fields[key.Value]
		if !ok {
			return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
		if ft == nil {
			continue
		}
		if err := checkFields(value, ft); err != nil {
			return err
		}
	}
	return nil
}

// yamlFields collects the keys yaml.v3 decodes into t, following inline
// embeds.
func yamlFields(t reflect.Type, fields map[string]reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "inline") {
			ft := f.Type
			for ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			yamlFields(ft, fields)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		fields[name] = f.Type
	}
}

// List is a sequence of actions decoded through Decode.
type List []engine.Action

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *List) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return engine.NewError(engine.KindInvalidManifest,
			fmt.Sprintf("line %d: actions must be a sequence", node.Line), nil)
	}

	list := make(List, 0, len(node.Content))
	for _, item := range node.Content {
		action, err := Decode(item)
		if err != nil {
			return err
		}
		list = append(list, action)
	}
	*l = list
	return nil
}

// render renders a field through the run's variable context.
func render(rc *engine.RunContext, value string) (string, error) {
	out, err := rc.Vars.Render(value)
	if err != nil {
		return "", engine.NewTemplateError(err)
	}
	return out, nil
}

// renderAll renders every field, stopping at the first failure.
func renderAll(rc *engine.RunContext, values []string) ([]string, error) {
	out, err := rc.Vars.RenderAll(values)
	if err != nil {
		return nil, engine.NewTemplateError(err)
	}
	return out, nil
}

// renderPath renders a path and expands a leading ~.
func renderPath(rc *engine.RunContext, value string) (string, error) {
	out, err := render(rc, value)
	if err != nil {
		return "", err
	}
	expanded, err := homedir.Expand(out)
	if err != nil {
		return "", engine.NewError(engine.KindAction, fmt.Sprintf("failed to expand %s", out), err)
	}
	return expanded, nil
}

// parseMode parses an octal permission string such as "0644".
func parseMode(chmod string, fallback os.FileMode) (os.FileMode, error) {
	if chmod == "" {
		return fallback, nil
	}
	mode, err := strconv.ParseUint(chmod, 8, 32)
	if err != nil {
		return 0, engine.NewError(engine.KindAction, fmt.Sprintf("invalid chmod %q", chmod), err)
	}
	return os.FileMode(mode) & os.ModePerm, nil
}

// tracer returns the run tracer, or a no-op one.
func tracer(rc *engine.RunContext) trace.Tracer {
	if rc.Tracer != nil {
		return rc.Tracer
	}
	return noop.NewTracerProvider().Tracer("")
}

func actionError(format string, err error, args ...any) error {
	return engine.NewError(engine.KindAction, fmt.Sprintf(format, args...), err)
}
