package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend"
)

// methodSpec describes a method in a methods file:
//
//	methods:
//	  - name: java.lang.Math.max
//	    descriptor: (II)I
//	    static: true
//	    entry: 0x602000
type methodSpec struct {
	Name         string `yaml:"name"`
	Descriptor   string `yaml:"descriptor"`
	Static       bool   `yaml:"static"`
	Synchronized bool   `yaml:"synchronized"`
	// Entry is the address of the native function of native methods.
	Entry  uint64 `yaml:"entry"`
	Mirror uint64 `yaml:"mirror"`

	sig *backend.Signature
}

func (m *methodSpec) parse() (err error) {
	m.sig, err = backend.ParseDescriptor(m.Descriptor, m.Static)
	return err
}

// String returns the name followed by the descriptor. Methods given by
// their descriptor alone print as the descriptor.
func (m *methodSpec) String() string {
	if m.Static {
		return "static " + m.Name + m.Descriptor
	}
	return m.Name + m.Descriptor
}

type methodsFile struct {
	Methods []*methodSpec `yaml:"methods"`
}

func readMethods(path string) ([]*methodSpec, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading methods: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var mf methodsFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, m := range mf.Methods {
		if err = m.parse(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return mf.Methods, nil
}

// collectMethods returns the methods of the descriptors on the command line
// followed by the ones of file.
func collectMethods(descriptors []string, file string, static bool) ([]*methodSpec, error) {
	var methods []*methodSpec
	for _, d := range descriptors {
		m := &methodSpec{Descriptor: d, Static: static}
		if err := m.parse(); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if file != "" {
		fromFile, err := readMethods(file)
		if err != nil {
			return nil, err
		}
		methods = append(methods, fromFile...)
	}
	if len(methods) == 0 {
		return nil, errors.New("no method descriptor given")
	}
	return methods, nil
}
