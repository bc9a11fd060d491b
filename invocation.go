/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"reflect"
)

type interceptorEntry struct {
	interceptor MethodInterceptor
	runtime     RuntimeMethodMatcher
}

/**
One in-flight proxied call advancing through the interceptor chain.
Proceed moves the cursor forward, skipping entries whose runtime matcher
rejects the live arguments, and ends at the target method. Interceptors
nest: the first to run regains control last.
*/

type methodInvocation struct {
	proxy   *Proxy
	pm      proxyMethod
	args    []interface{}
	entries []interceptorEntry
	index   int
}

func (t *methodInvocation) Method() reflect.Method {
	return t.pm.method
}

func (t *methodInvocation) Args() []interface{} {
	return t.args
}

func (t *methodInvocation) Target() interface{} {
	return t.pm.recv.Interface()
}

func (t *methodInvocation) TargetType() reflect.Type {
	return t.proxy.targetType
}

func (t *methodInvocation) Proceed() ([]interface{}, error) {
	for t.index < len(t.entries) {
		entry := t.entries[t.index]
		t.index++
		if entry.runtime != nil && !entry.runtime.MatchesArgs(t.pm.method, t.proxy.targetType, t.args) {
			continue
		}
		return entry.interceptor.Invoke(t)
	}
	return t.proxy.invokeTarget(t.pm, t.args)
}
