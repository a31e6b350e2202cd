/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package result pulls structured JSON out of model responses.

Models often wrap JSON in a fenced ```json block, or surround it with
prose. ExtractJSON finds the payload in either form, and Extract decodes it:

	in, err := result.Extract[intent.Intent](resp.Text)
	if err != nil {
		return fmt.Errorf("decoding intent: %w", err)
	}
*/
package result
