// Package vm implements the runtime boundary between typed and untyped code.
//
// This package contains:
//   - NaN-boxed value representation
//   - Heap records with fixed slots, indirection tables and prototype links
//   - Dynamic property stores and double-ended arrays
//   - Typed and untyped calling conventions
//   - The coercion engine, including return and call trampolines
//
// All mutable state lives in a Runtime. A type violation sets the runtime's
// fail-stop flag and panics with *TypeViolation; hosts that want an error
// instead use Protect or TryCoerce.
package vm
