// Package dispatch is the command registry (spec.md §4.1, grounded on
// original_source/src/server/command_registry.cc's CommandId/CommandRegistry
// pair): the name, arity, key-position spec, and transactional/blocking/
// write/global classification every other package needs to route, squash,
// and execute a command, plus the handler table itself.
package dispatch
