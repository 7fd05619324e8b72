package main

import "riddlebot/cmd"

func main() {
	cmd.Execute()
}
