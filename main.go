// SPDX-License-Identifier: MPL-2.0

package main

import cmd "vvimage/cmd/vvimage"

func main() {
	cmd.Execute()
}
