package main

import "wanx-studio/cmd"

func main() {
	cmd.Execute()
}
