package typecheck

// IgnoredCode is one TypeScript compiler diagnostic code silently dropped
// from type-check output because the sandboxes' curated ambient surface
// makes the underlying complaint irrelevant to runtime safety (spec.md
// §4.7). This list is part of the gateway's observable contract: changing
// it is a behavioural change (spec.md §9).
//
// Synchronized between this file and the ambient-declaration asset the
// type-check VM loads; a drift between the two produces confusing
// diagnostics that neither match the runtime nor get filtered.
var ignoredCodes = map[int]string{
	2307:  "module resolution handled by the host, not tsc",
	2304:  "require() is not used in ESM user code",
	7016:  "declaration files are not needed for runtime execution",
	2580:  "console is provided by the execution runtime",
	2585:  "Promise is provided by the execution runtime",
	2591:  "Promise is provided by the execution runtime",
	2693:  "Array is provided by the execution runtime",
	7006:  "implicit any allowed for JS-compatibility",
	7053:  "dynamic object access is valid JS",
	7005:  "implicit any[] allowed for JS-compatibility",
	7034:  "implicit any[] allowed for JS-compatibility",
	18046: "unknown-typed reduce operations work fine at runtime",
	2362:  "runtime handles arithmetic coercion",
	2363:  "runtime handles arithmetic coercion",
	2318:  "lib.d.ts global type not declared in the minimal ambient surface",
	2339:  "property access on an ambient type the minimal surface under-declares",
	2584:  "console is provided by the execution runtime",
	2583:  "Map/Set are provided by the execution runtime",
}

// IsIgnored reports whether a diagnostic code should be dropped from
// type-check output.
func IsIgnored(code int) bool {
	_, ok := ignoredCodes[code]
	return ok
}

// IgnoreReason returns a human-readable reason a code is ignored, for
// debug logging; ok is false for codes not on the list.
func IgnoreReason(code int) (reason string, ok bool) {
	reason, ok = ignoredCodes[code]
	return
}
