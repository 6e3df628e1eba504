//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the hera project using Mage.
//
// Usage:
//
//	mage build          Compile the hera binary to bin/
//	mage install        Install hera to GOPATH/bin
//	mage clean          Remove build artifacts
//	mage test:all       Run all tests
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Run all tests and write coverage.out
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage stats          Print Go LOC per package and documentation word counts
package main

// Default target when mage runs without arguments.
var Default = Build
