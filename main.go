// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/tpkg/tpkg/cmd/tpkg"

func main() {
	cmd.Execute()
}
