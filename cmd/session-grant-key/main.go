// Package main provides a one-shot utility for session grant key generation.
//
// It emits the asymmetric keypair used to sign and verify API session grants.
package main

import (
	"os"

	"github.com/openconf/openconf/internal/platform/config"
	"github.com/openconf/openconf/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate session grant key: %v", err)
	}
}
