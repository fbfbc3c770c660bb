package main

import "hubconnect/cmd"

func main() {
	cmd.Execute()
}
