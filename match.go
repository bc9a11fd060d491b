/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"hash/fnv"
	"reflect"
	"strconv"
	"sync"
)

/**
Extension point appending synthetic advisors after matching, before
sorting. Used to inject context-carrying advice ahead of user advice.
*/

type AdvisorExtension interface {
	Extend(eligible []Advisor, targetType reflect.Type) []Advisor
}

/**
Matches registered advisors against candidate bean types. The candidate
advisor list is re-fetched on every call since advisor beans may appear
later in the refresh; the per-(type, candidate-set) result is cached by
fingerprint, so steady-state reads are a single concurrent map lookup.
*/

type advisorMatcher struct {
	factory *beanFactory

	/**
	Installed before the first match and never mutated afterwards, so
	findEligibleAdvisors reads them without locking.
	*/
	extensions []AdvisorExtension

	cache sync.Map // fingerprint string -> []Advisor
}

func newAdvisorMatcher(factory *beanFactory) *advisorMatcher {
	return &advisorMatcher{factory: factory}
}

func (t *advisorMatcher) addExtension(ext AdvisorExtension) {
	t.extensions = append(t.extensions, ext)
}

/**
The full candidate list: advisor beans in registration order.
*/
func (t *advisorMatcher) candidateAdvisors() ([]Advisor, error) {
	discovered, err := t.factory.beansImplementing(AdvisorClass)
	if err != nil {
		return nil, err
	}
	var candidates []Advisor
	for _, obj := range discovered {
		candidates = append(candidates, obj.(Advisor))
	}
	return candidates, nil
}

/**
Deterministic for a fixed candidate set and type: class filter first,
then at least one matching method, introduction awareness computed once
per type, extension hook, stable sort by order. Empty result means
"do not proxy".
*/
func (t *advisorMatcher) findEligibleAdvisors(targetType reflect.Type, beanName string) ([]Advisor, error) {
	candidates, err := t.candidateAdvisors()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && len(t.extensions) == 0 {
		return nil, nil
	}

	key := matcherFingerprint(targetType, candidates)
	if cached, ok := t.cache.Load(key); ok {
		return cached.([]Advisor), nil
	}

	hasIntroductions := hasMatchingIntroductions(candidates, targetType)

	var eligible []Advisor
	for _, advisor := range candidates {
		if canApply(advisor, targetType, hasIntroductions) {
			eligible = append(eligible, advisor)
		}
	}
	for _, ext := range t.extensions {
		eligible = ext.Extend(eligible, targetType)
	}
	sorted := sortAdvisors(eligible)

	t.cache.Store(key, sorted)
	return sorted, nil
}

func matcherFingerprint(targetType reflect.Type, candidates []Advisor) string {
	h := fnv.New64a()
	for _, a := range candidates {
		h.Write([]byte(a.AdvisorName()))
		h.Write([]byte{0})
	}
	return targetType.String() + "|" + strconv.Itoa(len(candidates)) + "|" + strconv.FormatUint(h.Sum64(), 16)
}

func hasMatchingIntroductions(candidates []Advisor, targetType reflect.Type) bool {
	for _, advisor := range candidates {
		if ia, ok := advisor.(*IntroductionAdvisor); ok {
			if ia.classFilter()(targetType) {
				return true
			}
		}
	}
	return false
}

func canApply(advisor Advisor, targetType reflect.Type, hasIntroductions bool) bool {
	switch a := advisor.(type) {
	case *IntroductionAdvisor:
		return a.classFilter()(targetType)
	case *PointcutAdvisor:
		pc := a.Pointcut
		if pc == nil {
			pc = TruePointcut()
		}
		if !pc.ClassFilter()(targetType) {
			return false
		}
		mm := pc.MethodMatcher()
		for i := 0; i < targetType.NumMethod(); i++ {
			if matchesMethod(mm, targetType.Method(i), targetType, hasIntroductions) {
				return true
			}
		}
		return false
	default:
		// advisors of unknown shape apply unconditionally, like plain interceptors
		return true
	}
}

func matchesMethod(mm MethodMatcher, method reflect.Method, targetType reflect.Type, hasIntroductions bool) bool {
	if iamm, ok := mm.(IntroductionAwareMethodMatcher); ok {
		return iamm.MatchesWithIntroductions(method, targetType, hasIntroductions)
	}
	return mm.Matches(method, targetType)
}
