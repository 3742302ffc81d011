// Package command is the boundary through which server utility programs are
// invoked.
//
// A Planner turns a logical operation plus instance facts into a concrete
// invocation (binary, arguments, environment); a Runner executes an
// invocation and reports the outcome. Both are interfaces so callers can
// substitute version-specific argument construction or fake execution in
// tests. The defaults cover the stock utilities of a modern server release.
package command
