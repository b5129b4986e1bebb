// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is a client for OpenAI-compatible APIs: chat
// completions for the conversational command and image generation for
// the drawing command. It speaks the OpenAI wire format, so any
// compatible server works (OpenAI, OpenRouter, vLLM, Ollama,
// llama.cpp).
//
// The API key lives in a secret.Buffer and is injected as a bearer
// token per request; it never appears in logs or error messages.
package llm
