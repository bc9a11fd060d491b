/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"fmt"
	"reflect"
	"sort"
)

var AdvisorClass = reflect.TypeOf((*Advisor)(nil)).Elem()

/**
An advisor couples where (pointcut or class filter) with what (advice or
introduced interface). Advisors are discovered as container beans or
registered directly in New; for one refresh a discovered advisor is
immutable.
*/

type Advisor interface {
	AdvisorName() string

	AdvisorOrder() int
}

/**
Pointcut + advice pair, the common advisor kind.
*/

type PointcutAdvisor struct {
	Name  string
	Order int

	Pointcut Pointcut

	/**
	MethodInterceptor, BeforeAdvice, AfterReturningAdvice or ThrowsAdvice.
	*/
	Advice interface{}
}

func (t *PointcutAdvisor) AdvisorName() string {
	return t.Name
}

func (t *PointcutAdvisor) AdvisorOrder() int {
	return t.Order
}

func (t *PointcutAdvisor) String() string {
	return fmt.Sprintf("PointcutAdvisor{name=%s, order=%d}", t.Name, t.Order)
}

/**
Adds a whole interface to matching targets: the proxy answers the
introduced methods by dispatching to the delegate, and reports the
interface from Implements.
*/

type IntroductionAdvisor struct {
	Name  string
	Order int

	/**
	Applicability by target type; nil matches every type.
	*/
	Filter ClassFilter

	Interface reflect.Type

	Delegate interface{}
}

func (t *IntroductionAdvisor) AdvisorName() string {
	return t.Name
}

func (t *IntroductionAdvisor) AdvisorOrder() int {
	return t.Order
}

func (t *IntroductionAdvisor) classFilter() ClassFilter {
	if t.Filter == nil {
		return TrueClassFilter
	}
	return t.Filter
}

func (t *IntroductionAdvisor) String() string {
	return fmt.Sprintf("IntroductionAdvisor{name=%s, iface=%v, order=%d}", t.Name, t.Interface, t.Order)
}

/**
Ascending order value, stable on ties so declared order survives.
*/
func sortAdvisors(advisors []Advisor) []Advisor {
	out := append([]Advisor(nil), advisors...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AdvisorOrder() < out[j].AdvisorOrder()
	})
	return out
}
