/*
Package configspec implements appmgr's configuration schema: a recursive
type describing the shape a package's Config document must take (object,
list, string with pattern/enum, number with range/integrality, boolean,
tagged union, or pointer to another package's config or a system
property), validation against
that shape, and deterministic default-value generation.

Validation produces a MatchError annotated with the root-to-leaf path at
which it occurred: each recursive call prepends its own segment to the child error's path
as the recursion unwinds, so a failure three objects deep ends up with the
full dotted path ("foo.bar.baz"), not just the leaf's name.
*/
package configspec
