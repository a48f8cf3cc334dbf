// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for antennyctl.
//
// The central type is [Command], a named subcommand with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory, and a Run function.
// [Command.Execute] parses flags, routes subcommands, and prints help
// with examples. Unknown subcommands and flags get a "did you mean"
// suggestion when one is within edit distance 3.
//
// Parameter structs declare their flags with struct tags and are bound
// by [FlagsFromParams]. Embedding [JSONOutput] adds --json.
package cli
