package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/wdrunner/lib"
)

// ErrEmptyModule is returned for a module file without any document.
var ErrEmptyModule = errors.New("empty module file")

type moduleFile struct {
	Name         string                 `yaml:"name"`
	Capabilities map[string]interface{} `yaml:"capabilities"`

	Before     *hookSpec `yaml:"before"`
	BeforeEach *hookSpec `yaml:"beforeEach"`
	AfterEach  *hookSpec `yaml:"afterEach"`
	After      *hookSpec `yaml:"after"`

	Tests []testSpec `yaml:"tests"`
}

// hookSpec is either a plain list of steps or a mapping with steps and
// options.
type hookSpec struct {
	Steps                []lib.Step
	SkipTestcasesOnError *bool
}

func (h *hookSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode(&h.Steps)
	case yaml.MappingNode:
		var aux struct {
			Steps                []lib.Step `yaml:"steps"`
			SkipTestcasesOnError *bool      `yaml:"skipTestcasesOnError"`
		}
		if err := value.Decode(&aux); err != nil {
			return err
		}
		h.Steps, h.SkipTestcasesOnError = aux.Steps, aux.SkipTestcasesOnError
		return nil
	default:
		return fmt.Errorf("line %d: a hook must be a list of steps or a mapping with steps", value.Line)
	}
}

type testSpec struct {
	Name  string     `yaml:"name"`
	Steps []lib.Step `yaml:"steps"`
}

// Parse builds a module from the YAML in data. key becomes the module's Path
// and file its File; the name defaults to the file's base name.
func Parse(key, file string, data []byte) (*lib.Module, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var mf moduleFile
	if err := dec.Decode(&mf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyModule
		}
		return nil, err
	}

	m := &lib.Module{
		Path:         key,
		Name:         mf.Name,
		File:         file,
		Capabilities: lib.Capabilities(mf.Capabilities),
	}
	if m.Name == "" {
		base := filepath.Base(file)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	for _, h := range []struct {
		kind lib.HookKind
		spec *hookSpec
	}{
		{lib.HookBefore, mf.Before},
		{lib.HookBeforeEach, mf.BeforeEach},
		{lib.HookAfterEach, mf.AfterEach},
		{lib.HookAfter, mf.After},
	} {
		if h.spec == nil {
			continue
		}
		m.Hooks = append(m.Hooks, lib.Hook{
			Kind:        h.kind,
			Body:        lib.Body{Steps: h.spec.Steps},
			SkipOnError: null.BoolFromPtr(h.spec.SkipTestcasesOnError),
		})
	}

	names := make(map[string]struct{}, len(mf.Tests))
	for i, tc := range mf.Tests {
		if tc.Name == "" {
			return nil, fmt.Errorf("test #%d has no name", i+1)
		}
		if _, dup := names[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate test name %q", tc.Name)
		}
		names[tc.Name] = struct{}{}
		m.TestCases = append(m.TestCases, lib.TestCase{Name: tc.Name, Body: lib.Body{Steps: tc.Steps}})
	}
	return m, nil
}
