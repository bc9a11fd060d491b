/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"strings"

	"github.com/pkg/errors"
)

/**
Definition post-processor resolving ${key} and ${key:default} placeholders
in literal constructor args and property values before any bean is
instantiated. Property sources scanned in New feed the backing Properties.
*/

type PlaceholderConfigurer struct {
	props Properties
}

/**
Pass nil to bind against the properties of the context that scans the
configurer.
*/
func NewPlaceholderConfigurer(props Properties) *PlaceholderConfigurer {
	return &PlaceholderConfigurer{props: props}
}

func (t *PlaceholderConfigurer) Order() int {
	return 0
}

func (t *PlaceholderConfigurer) PriorityOrdered() {
}

func (t *PlaceholderConfigurer) PostProcessDefinitions(registry *DefinitionRegistry) error {
	for _, name := range registry.Names() {
		def, ok := registry.Find(name)
		if !ok {
			continue
		}
		resolved := def.clone()
		changed := false
		for i, arg := range resolved.Args {
			next, replaced, err := t.resolveArg(arg)
			if err != nil {
				return errors.Wrapf(err, "constructor argument %d of bean '%s'", i, name)
			}
			if replaced {
				resolved.Args[i] = next
				changed = true
			}
		}
		for i, prop := range resolved.Properties {
			next, replaced, err := t.resolveArg(prop.arg)
			if err != nil {
				return errors.Wrapf(err, "property '%s' of bean '%s'", prop.name, name)
			}
			if replaced {
				resolved.Properties[i].arg = next
				changed = true
			}
		}
		if changed {
			if err := registry.Update(resolved); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *PlaceholderConfigurer) resolveArg(arg ArgSpec) (ArgSpec, bool, error) {
	if !arg.hasValue {
		return arg, false, nil
	}
	s, ok := arg.value.(string)
	if !ok || !strings.Contains(s, "${") {
		return arg, false, nil
	}
	resolved, err := t.Resolve(s)
	if err != nil {
		return arg, false, err
	}
	return Arg(resolved), true, nil
}

/**
Resolves every placeholder in the string. A key without a default that no
resolver knows is a configuration error.
*/
func (t *PlaceholderConfigurer) Resolve(s string) (string, error) {
	var out strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			out.WriteString(s)
			return out.String(), nil
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return "", errors.Errorf("unterminated placeholder in '%s'", s)
		}
		end += start
		out.WriteString(s[:start])

		inner := s[start+2 : end]
		key := inner
		def := ""
		hasDefault := false
		if idx := strings.IndexByte(inner, ':'); idx != -1 {
			key = inner[:idx]
			def = inner[idx+1:]
			hasDefault = true
		}
		if value, ok := t.props.Get(key); ok {
			out.WriteString(value)
		} else if hasDefault {
			out.WriteString(def)
		} else {
			return "", errors.Errorf("unresolvable placeholder '${%s}'", key)
		}
		s = s[end+1:]
	}
}
