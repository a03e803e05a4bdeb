/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestagent

import "github.com/atotto/clipboard"

// OSClipboard is the Clipboard implementation backed by the real OS
// clipboard (§4.1 "the clipboard field of /obs_winagent is read through a
// real OS clipboard binding", §11).
type OSClipboard struct{}

func (OSClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (OSClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }
