//go:build e2e

/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package episode_test

import (
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Run the episode engine's end-to-end suite using the Ginkgo runner,
// grounded on test/e2e/e2e_suite_test.go's RunSpecs entrypoint.
func TestEpisodeE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	fmt.Fprintf(GinkgoWriter, "Starting episode engine e2e suite\n")
	RunSpecs(t, "episode engine e2e suite")
}
