/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"reflect"

	"github.com/pkg/errors"
)

/**
One in-flight call travelling through an interceptor chain. Proceed runs
the rest of the chain and finally the real target method. Return values
exclude a trailing error return of the target method: that error travels
on the error channel of the chain instead.
*/

type Invocation interface {
	Method() reflect.Method

	Args() []interface{}

	Target() interface{}

	TargetType() reflect.Type

	Proceed() ([]interface{}, error)
}

var MethodInterceptorClass = reflect.TypeOf((*MethodInterceptor)(nil)).Elem()

/**
Uniform "around" shape every advice is adapted into. An interceptor may
run logic before and after Proceed, skip Proceed entirely and substitute
its own result, or translate the error coming back.
*/

type MethodInterceptor interface {
	Invoke(inv Invocation) ([]interface{}, error)
}

type MethodInterceptorFunc func(inv Invocation) ([]interface{}, error)

func (t MethodInterceptorFunc) Invoke(inv Invocation) ([]interface{}, error) {
	return t(inv)
}

/**
Advice variants. Each is adapted into a MethodInterceptor before being
placed in a chain, so ordering and nesting are uniform regardless of the
declared flavor.
*/

type BeforeAdvice func(method reflect.Method, args []interface{}, target interface{}) error

type AfterReturningAdvice func(result []interface{}, method reflect.Method, args []interface{}, target interface{}) error

/**
Runs only when the call comes back with an error. A non-nil return
replaces the propagated error (translation); nil keeps the original.
*/

type ThrowsAdvice func(method reflect.Method, args []interface{}, target interface{}, err error) error

type beforeAdviceInterceptor struct {
	advice BeforeAdvice
}

func (t *beforeAdviceInterceptor) Invoke(inv Invocation) ([]interface{}, error) {
	if err := t.advice(inv.Method(), inv.Args(), inv.Target()); err != nil {
		return nil, err
	}
	return inv.Proceed()
}

type afterReturningAdviceInterceptor struct {
	advice AfterReturningAdvice
}

func (t *afterReturningAdviceInterceptor) Invoke(inv Invocation) ([]interface{}, error) {
	result, err := inv.Proceed()
	if err != nil {
		return result, err
	}
	// keep the target's results alongside the advice error, so a
	// translating interceptor upstream still sees them
	if err := t.advice(result, inv.Method(), inv.Args(), inv.Target()); err != nil {
		return result, err
	}
	return result, nil
}

type throwsAdviceInterceptor struct {
	advice ThrowsAdvice
}

func (t *throwsAdviceInterceptor) Invoke(inv Invocation) ([]interface{}, error) {
	result, err := inv.Proceed()
	if err == nil {
		return result, nil
	}
	if translated := t.advice(inv.Method(), inv.Args(), inv.Target(), err); translated != nil {
		return result, translated
	}
	return result, err
}

/**
Adapts any supported advice flavor to the uniform interceptor shape.
*/
func adaptAdvice(advice interface{}) (MethodInterceptor, error) {
	switch a := advice.(type) {
	case MethodInterceptor:
		return a, nil
	case MethodInterceptorFunc:
		return a, nil
	case func(inv Invocation) ([]interface{}, error):
		return MethodInterceptorFunc(a), nil
	case BeforeAdvice:
		return &beforeAdviceInterceptor{advice: a}, nil
	case AfterReturningAdvice:
		return &afterReturningAdviceInterceptor{advice: a}, nil
	case ThrowsAdvice:
		return &throwsAdviceInterceptor{advice: a}, nil
	default:
		return nil, errors.Errorf("unsupported advice type '%v'", reflect.TypeOf(advice))
	}
}
