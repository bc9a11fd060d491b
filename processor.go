/*
 * Copyright (c) 2026 Strand Labs LLC.
 * SPDX-License-Identifier: Apache-2.0
 */

package weave

import (
	"sort"
)

/**
Ordering of the post-processor pipeline: PriorityOrdered tier first, then
Ordered, then unordered; ascending order value within a tier, registration
order on ties. Sorting is stable so registration order is the final
tie-break.
*/

func participantTier(p interface{}) int {
	if _, ok := p.(PriorityOrdered); ok {
		return 0
	}
	if _, ok := p.(Ordered); ok {
		return 1
	}
	return 2
}

func participantOrder(p interface{}) int {
	if o, ok := p.(Ordered); ok {
		return o.Order()
	}
	return 0
}

func sortPostProcessors(list []BeanPostProcessor) []BeanPostProcessor {
	out := append([]BeanPostProcessor(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := participantTier(out[i]), participantTier(out[j])
		if ti != tj {
			return ti < tj
		}
		return participantOrder(out[i]) < participantOrder(out[j])
	})
	return out
}

func sortDefinitionPostProcessors(list []DefinitionPostProcessor) []DefinitionPostProcessor {
	out := append([]DefinitionPostProcessor(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := participantTier(out[i]), participantTier(out[j])
		if ti != tj {
			return ti < tj
		}
		return participantOrder(out[i]) < participantOrder(out[j])
	})
	return out
}
