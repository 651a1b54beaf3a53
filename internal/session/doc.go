// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties one context window and one api mode router into a
// translation pipeline.
//
// A Session owns the window for its lifetime. Each Translate call reads the
// budgeted context string, builds an OpenAI-style chat request carrying it,
// asks the router where the request goes, falls back to the user's own
// client when the router answers "personal", and records the translated
// chunk back into the window.
//
// # Key Types
//
//   - Session: per-conversation pipeline state
//   - Result: one translation and how it was served
//   - Status: snapshot for display
//
// # Usage
//
//	s := session.New(window, apiRouter, personalClient, session.Config{
//	    APIKey: cfg.Personal.APIKey,
//	    Model:  cfg.Personal.Model,
//	})
//	res, err := s.Translate(ctx, "Good morning", "en", "ja")
//	fmt.Println(res.Text, res.Mode)
package session
