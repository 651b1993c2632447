// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config loads and validates the gateway's runtime configuration.

# Overview

Configuration is merged in three layers, each overriding the last:
default values, an optional YAML file, and environment variables under
the GEMIGATE_ prefix. Nested per-model maps (rate-limit budgets, safety
settings, thinking budgets, URL-context model lists) are YAML-only; the
environment overlay only reaches scalar leaf fields tagged with `env`.

# Core types

  - Config: the top-level aggregate covering Server, Upstream, Keys,
    Limits, Payload, Stream, Sink, Log, and Telemetry
  - Loader: Builder-style loader chaining WithConfigPath, WithEnvPrefix,
    and WithValidator

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("GEMIGATE").
		Load()
*/
package config
