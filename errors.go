/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

/**
Typed errors of the container. Creation failures always wrap the original
cause and carry the offending bean name; cycle failures carry the full
participant chain.
*/

type CreationError struct {
	BeanName string
	Cause    error
}

func (t *CreationError) Error() string {
	return fmt.Sprintf("error creating bean '%s': %v", t.BeanName, t.Cause)
}

func (t *CreationError) Unwrap() error {
	return t.Cause
}

func creationError(beanName string, cause error) error {
	var ce *CreationError
	if errors.As(cause, &ce) {
		// keep the innermost bean attribution
		return cause
	}
	return &CreationError{BeanName: beanName, Cause: cause}
}

type CycleError struct {
	Chain []string
}

func (t *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(t.Chain, " -> "))
}

type NoSuchBeanError struct {
	Name string
	Type reflect.Type
}

func (t *NoSuchBeanError) Error() string {
	if t.Name != "" {
		return fmt.Sprintf("no such bean '%s'", t.Name)
	}
	return fmt.Sprintf("no bean of type '%v'", t.Type)
}

type AmbiguousBeanError struct {
	Name       string
	Type       reflect.Type
	Candidates []string
}

func (t *AmbiguousBeanError) Error() string {
	if t.Type != nil {
		return fmt.Sprintf("multiple candidates of type '%v' and none marked primary: %v", t.Type, t.Candidates)
	}
	return fmt.Sprintf("multiple candidates for '%s' and none marked primary: %v", t.Name, t.Candidates)
}

type ProxyConfigError struct {
	TargetType reflect.Type
	Reason     string
}

func (t *ProxyConfigError) Error() string {
	return fmt.Sprintf("proxy configuration error for target '%v': %s", t.TargetType, t.Reason)
}

/**
Reported when the context is used outside its valid lifecycle window,
distinct from creation errors.
*/

type StateError struct {
	Op    string
	Phase ContextPhase
}

func (t *StateError) Error() string {
	return fmt.Sprintf("illegal context state '%v' for operation '%s'", t.Phase, t.Op)
}
