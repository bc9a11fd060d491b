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

type alphaBean struct {
	B *betaBean
}

type betaBean struct {
	A *alphaBean
}

var alphaClass = reflect.TypeOf((*alphaBean)(nil))
var betaClass = reflect.TypeOf((*betaBean)(nil))

func TestSetterCycleResolved(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{
			Name:       "alpha",
			Type:       alphaClass,
			Properties: []weave.PropertySpec{weave.PropRef("B", "beta")},
		},
		&weave.BeanDefinition{
			Name:       "beta",
			Type:       betaClass,
			Properties: []weave.PropertySpec{weave.PropRef("A", "alpha")},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("alpha")
	require.NoError(t, err)
	alpha := obj.(*alphaBean)

	require.NotNil(t, alpha.B)
	require.Same(t, alpha, alpha.B.A)
}

func TestSetterCycleWithAutowire(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "alpha", Type: alphaClass, Autowire: weave.AutowireByType},
		&weave.BeanDefinition{Name: "beta", Type: betaClass, Autowire: weave.AutowireByType},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	obj, err := ctx.GetBean("beta")
	require.NoError(t, err)
	beta := obj.(*betaBean)

	require.NotNil(t, beta.A)
	require.Same(t, beta, beta.A.B.A.B)
}

func newCycleAlpha(b *cycleBetaBean) *cycleAlphaBean {
	return &cycleAlphaBean{b: b}
}

func newCycleBeta(a *cycleAlphaBean) *cycleBetaBean {
	return &cycleBetaBean{a: a}
}

type cycleAlphaBean struct {
	b *cycleBetaBean
}

type cycleBetaBean struct {
	a *cycleAlphaBean
}

func TestConstructorCycleRejected(t *testing.T) {

	ctx, err := weave.New(
		newCycleAlpha,
		newCycleBeta,
	)
	require.NoError(t, err)

	err = ctx.Refresh()
	require.Error(t, err)

	var cycleErr *weave.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Contains(t, cycleErr.Chain, "cycleAlphaBean")
	require.Contains(t, cycleErr.Chain, "cycleBetaBean")
}

func TestCycleRejectedWhenDisabled(t *testing.T) {

	ctx, err := weave.New(
		weave.Settings{DisableCircularReferences: true},
		&weave.BeanDefinition{
			Name:       "alpha",
			Type:       alphaClass,
			Properties: []weave.PropertySpec{weave.PropRef("B", "beta")},
		},
		&weave.BeanDefinition{
			Name:       "beta",
			Type:       betaClass,
			Properties: []weave.PropertySpec{weave.PropRef("A", "alpha")},
		},
	)
	require.NoError(t, err)

	err = ctx.Refresh()
	require.Error(t, err)

	var cycleErr *weave.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestFailedCycleLeavesNoPartialSingletons(t *testing.T) {

	ctx, err := weave.New(
		newCycleAlpha,
		newCycleBeta,
	)
	require.NoError(t, err)
	require.Error(t, ctx.Refresh())

	_, err = ctx.GetBean("cycleAlphaBean")
	var stateErr *weave.StateError
	require.ErrorAs(t, err, &stateErr)
}

type bootRecorder struct {
	order []string
}

type firstBooted struct {
	Recorder *bootRecorder
}

func (t *firstBooted) PostConstruct() error {
	t.Recorder.order = append(t.Recorder.order, "first")
	return nil
}

type secondBooted struct {
	Recorder *bootRecorder
}

func (t *secondBooted) PostConstruct() error {
	t.Recorder.order = append(t.Recorder.order, "second")
	return nil
}

func TestDependsOnOrdering(t *testing.T) {

	recorder := &bootRecorder{}

	ctx, err := weave.New(
		&weave.BeanDefinition{Name: "recorder", Instance: recorder},
		&weave.BeanDefinition{
			Name:      "second",
			Type:      reflect.TypeOf((*secondBooted)(nil)),
			Autowire:  weave.AutowireByType,
			DependsOn: []string{"first"},
		},
		&weave.BeanDefinition{
			Name:     "first",
			Type:     reflect.TypeOf((*firstBooted)(nil)),
			Autowire: weave.AutowireByType,
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	require.Equal(t, []string{"first", "second"}, recorder.order)
}

func TestPrototypeCycleRejected(t *testing.T) {

	ctx, err := weave.New(
		&weave.BeanDefinition{
			Name:       "alpha",
			Type:       alphaClass,
			Scope:      weave.ScopePrototype,
			Properties: []weave.PropertySpec{weave.PropRef("B", "beta")},
		},
		&weave.BeanDefinition{
			Name:       "beta",
			Type:       betaClass,
			Scope:      weave.ScopePrototype,
			Properties: []weave.PropertySpec{weave.PropRef("A", "alpha")},
		},
	)
	require.NoError(t, err)
	require.NoError(t, ctx.Refresh())
	defer ctx.Close()

	_, err = ctx.GetBean("alpha")
	require.Error(t, err)

	var cycleErr *weave.CycleError
	require.ErrorAs(t, err, &cycleErr)
}
