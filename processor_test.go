/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strandlabs/weave"
)

type tracingProcessor struct {
	label string
	trace *[]string
	order int
}

func (t *tracingProcessor) Order() int {
	return t.order
}

func (t *tracingProcessor) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		*t.trace = append(*t.trace, t.label+":before")
	}
	return obj, nil
}

func (t *tracingProcessor) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		*t.trace = append(*t.trace, t.label+":after")
	}
	return obj, nil
}

type priorityTracingProcessor struct {
	tracingProcessor
}

func (t *priorityTracingProcessor) PriorityOrdered() {}

func TestPostProcessorOrderingTiers(t *testing.T) {

	var trace []string

	ctx, err := weave.New(
		&tracingProcessor{label: "plainHigh", trace: &trace, order: 5},
		&priorityTracingProcessor{tracingProcessor{label: "priority", trace: &trace, order: 100}},
		&tracingProcessor{label: "plainLow", trace: &trace, order: 1},
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	// priority tier first despite its large order value, then ascending order
	require.Equal(t, []string{
		"priority:before", "plainLow:before", "plainHigh:before",
		"priority:after", "plainLow:after", "plainHigh:after",
	}, trace)
}

type replacingProcessor struct {
	replacement interface{}
}

func (t *replacingProcessor) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *replacingProcessor) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		return t.replacement, nil
	}
	return obj, nil
}

func TestPostProcessorReplacesBean(t *testing.T) {

	replacement := &userRepository{Opened: true}

	ctx, err := weave.New(
		&replacingProcessor{replacement: replacement},
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	require.Same(t, replacement, obj)
}

type haltingProcessor struct {
	trace *[]string
	label string
	halt  bool
}

func (t *haltingProcessor) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName != "userRepository" {
		return obj, nil
	}
	*t.trace = append(*t.trace, t.label)
	if t.halt {
		// nil keeps the current object and stops the phase
		return nil, nil
	}
	return obj, nil
}

func (t *haltingProcessor) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func TestNilReturnStopsPhase(t *testing.T) {

	var trace []string

	ctx, err := weave.New(
		&haltingProcessor{trace: &trace, label: "first", halt: true},
		&haltingProcessor{trace: &trace, label: "second"},
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	require.Equal(t, []string{"first"}, trace)

	obj, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	require.IsType(t, &userRepository{}, obj)
}

type shortCircuitProcessor struct {
	substitute interface{}
	afterInit  *[]string
}

func (t *shortCircuitProcessor) BeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		return t.substitute, nil
	}
	return nil, nil
}

func (t *shortCircuitProcessor) AfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return true, nil
}

func (t *shortCircuitProcessor) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		*t.afterInit = append(*t.afterInit, "beforeInit")
	}
	return obj, nil
}

func (t *shortCircuitProcessor) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	if beanName == "userRepository" {
		*t.afterInit = append(*t.afterInit, "afterInit")
	}
	return obj, nil
}

func TestBeforeInstantiationShortCircuit(t *testing.T) {

	var phases []string
	substitute := &userRepository{Opened: true}

	ctx, err := weave.New(
		&shortCircuitProcessor{substitute: substitute, afterInit: &phases},
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("userRepository")
	require.NoError(t, err)
	require.Same(t, substitute, obj)

	// short-circuited beans only see the after-init phase
	require.Equal(t, []string{"afterInit"}, phases)
}

type vetoProcessor struct{}

func (t *vetoProcessor) BeforeInstantiation(beanType reflect.Type, beanName string) (interface{}, error) {
	return nil, nil
}

func (t *vetoProcessor) AfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return beanName != "userService", nil
}

func (t *vetoProcessor) BeforeInit(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func (t *vetoProcessor) AfterInit(obj interface{}, beanName string) (interface{}, error) {
	return obj, nil
}

func TestAfterInstantiationVeto(t *testing.T) {

	ctx, err := weave.New(
		&vetoProcessor{},
		&weave.BeanDefinition{Name: "userRepository", Type: userRepositoryClass},
		&weave.BeanDefinition{
			Name:       "userService",
			Type:       reflect.TypeOf((*userService)(nil)),
			Properties: []weave.PropertySpec{weave.PropRef("Repo", "userRepository")},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("userService")
	require.NoError(t, err)
	require.Nil(t, obj.(*userService).Repo)
}

type sessionPool struct {
	journal *[]string
}

func (t *sessionPool) Destroy() error {
	*t.journal = append(*t.journal, "sessionPool")
	return nil
}

type sessionCache struct {
	Pool    *sessionPool
	journal *[]string
}

func (t *sessionCache) Destroy() error {
	*t.journal = append(*t.journal, "sessionCache")
	return nil
}

func TestDestroyReverseOrder(t *testing.T) {

	var journal []string

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "sessionPool", Instance: &sessionPool{journal: &journal}},
		&weave.BeanDefinition{
			Name:       "sessionCache",
			Instance:   &sessionCache{journal: &journal},
			Properties: []weave.PropertySpec{weave.PropRef("Pool", "sessionPool")},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())

	require.NoError(t, ctx.Close())
	require.Equal(t, []string{"sessionCache", "sessionPool"}, journal)
}

type auditedBean struct {
	journal *[]string
}

func (t *auditedBean) Open() error {
	*t.journal = append(*t.journal, "open")
	return nil
}

func (t *auditedBean) Shutdown() error {
	*t.journal = append(*t.journal, "shutdown")
	return nil
}

func TestNamedInitAndDestroyMethods(t *testing.T) {

	var journal []string

	ctx, err := weave.New(
		&weave.BeanDefinition{
			Name:          "audited",
			Instance:      &auditedBean{journal: &journal},
			InitMethod:    "Open",
			DestroyMethod: "Shutdown",
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	require.Equal(t, []string{"open"}, journal)

	require.NoError(t, ctx.Close())
	require.Equal(t, []string{"open", "shutdown"}, journal)
}
