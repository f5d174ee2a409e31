// Package parser turns envault configuration source text into an ordered
// list of AST nodes with source locations.
//
// The grammar is line-oriented: every physical line is dispatched on its
// leading characters, and only directive blocks and triple-quoted string
// literals consume more than one line.
//
//	KEY  = <expr>            # replace
//	KEY ?= <expr>            # set if absent
//	KEY += <expr>            # append with separator (default ":"), or +=(sep) <expr>
//	KEY  = @unset            # remove
//	!protected KEY = <expr>  # reject later overrides unless --force
//	[profile-name]                       # profile section
//	[scope:name]                         # scope section
//	[scope:name extends a b]             # scope section with inheritance
//	@include <path-or-glob>
//	@import <uri> [prefix=X] [case=upper|lower|keep]
//	@from <baseUri> { KEY = "path#version" ... }
//	@if <cond> { ... }        # cond: profile == "x"  |  env("X") == "y"
//	with <fn>(args) { ... }   # scoped default provider args
//
// An expression is an optional provider reference or literal, an ordered pipe
// chain, and an optional fallback literal:
//
//	<expr> ::= ["!" provider] [pipe ("|"|"?|") ...] ["||" fallback-literal]
//	provider ::= scheme "://" rest  |  name "(" args ")"
//
// Splitting on "||", "|", "?|", commas, and parens happens at quote depth
// zero only, so literal pipes and commas inside quoted argument values never
// break segmentation. Values are untyped: "3000" and "true" are strings.
//
// Nested directive bodies (@if, with) are parsed by the same line-dispatch
// routine, recursively, carrying a cursor into the shared line slice.
package parser
