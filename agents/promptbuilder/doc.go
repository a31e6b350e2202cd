/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package promptbuilder composes model prompts from developer-written templates
and structured runtime data.

Templates are string constants with {{name}} placeholders. Runtime values,
including anything a user typed, can only be bound through an encoder (XML,
JSON or YAML), and substitution is single-pass, so bound data can never
introduce new placeholders.

	var system = promptbuilder.MustNewPrompt(`You are a repository assistant.
	<context>
	{{context}}
	</context>
	Preferences:
	{{factors}}`)

	p, err := system.BindXML("context", ctx)
	if err != nil {
		return err
	}
	p, err = p.BindYAML("factors", factors)
	if err != nil {
		return err
	}
	text, err := p.Build()
*/
package promptbuilder
