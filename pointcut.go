/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"path"
	"reflect"
)

/**
A pointcut is a predicate over (type, method) deciding where an advisor
applies. The class filter is the cheap check and always runs first.
*/

type ClassFilter func(targetType reflect.Type) bool

type MethodMatcher interface {

	/**
	Static match against the method signature. Evaluated once per method
	when interceptor chains are built.
	*/
	Matches(method reflect.Method, targetType reflect.Type) bool
}

/**
Matchers that depend on whether the target also gains interfaces through
introduction advisors. The engine computes introduction applicability
once per target type and feeds it to every such matcher.
*/

type IntroductionAwareMethodMatcher interface {
	MethodMatcher

	MatchesWithIntroductions(method reflect.Method, targetType reflect.Type, hasIntroductions bool) bool
}

/**
Matchers whose decision depends on actual argument values. Their static
Matches still gates chain membership; the argument check runs on every
invocation instead of being cached.
*/

type RuntimeMethodMatcher interface {
	MethodMatcher

	MatchesArgs(method reflect.Method, targetType reflect.Type, args []interface{}) bool
}

type Pointcut interface {
	ClassFilter() ClassFilter
	MethodMatcher() MethodMatcher
}

/**
Function adapter for static method matchers.
*/

type MethodMatcherFunc func(method reflect.Method, targetType reflect.Type) bool

func (t MethodMatcherFunc) Matches(method reflect.Method, targetType reflect.Type) bool {
	return t(method, targetType)
}

type pointcut struct {
	classFilter   ClassFilter
	methodMatcher MethodMatcher
}

func (t *pointcut) ClassFilter() ClassFilter {
	return t.classFilter
}

func (t *pointcut) MethodMatcher() MethodMatcher {
	return t.methodMatcher
}

func NewPointcut(cf ClassFilter, mm MethodMatcher) Pointcut {
	if cf == nil {
		cf = TrueClassFilter
	}
	if mm == nil {
		mm = TrueMethodMatcher
	}
	return &pointcut{classFilter: cf, methodMatcher: mm}
}

var TrueClassFilter ClassFilter = func(reflect.Type) bool { return true }

var TrueMethodMatcher MethodMatcher = MethodMatcherFunc(func(reflect.Method, reflect.Type) bool { return true })

/**
Matches every method of every type.
*/
func TruePointcut() Pointcut {
	return NewPointcut(TrueClassFilter, TrueMethodMatcher)
}

/**
Matches methods whose name satisfies one of the glob patterns, e.g.
"Get*", "Find*", "Save".
*/
func NameMatchPointcut(patterns ...string) Pointcut {
	return NewPointcut(TrueClassFilter, MethodMatcherFunc(func(method reflect.Method, _ reflect.Type) bool {
		for _, pattern := range patterns {
			if ok, err := path.Match(pattern, method.Name); err == nil && ok {
				return true
			}
		}
		return false
	}))
}

/**
Restricts a pointcut to targets assignable to the given type.
*/
func TypedPointcut(typ reflect.Type, mm MethodMatcher) Pointcut {
	return NewPointcut(func(targetType reflect.Type) bool {
		return typeSatisfies(targetType, typ)
	}, mm)
}
