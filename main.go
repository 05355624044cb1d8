package main

import "sticky-bot/cmd"

func main() {
	cmd.Execute()
}
